package ingest

import "strings"

// aiKeywords is the filter vocabulary for AI-related articles. Matching is a
// lowercase substring check over title and content.
var aiKeywords = []string{
	// Core terms
	"ai", "artificial intelligence", "machine learning", "deep learning",
	"neural network", "llm", "large language model", "generative ai",
	"foundation model", "agi",
	// Companies and labs
	"openai", "anthropic", "deepmind", "google ai", "meta ai", "nvidia",
	"mistral ai", "hugging face", "stability ai", "midjourney", "cohere",
	"perplexity", "xai", "scale ai", "databricks", "groq", "waymo",
	// Models and products
	"gpt", "chatgpt", "claude", "gemini", "llama", "copilot", "stable diffusion",
	"dall-e", "sora", "whisper", "mixtral", "qwen", "deepseek", "grok",
	// Technique and infrastructure
	"transformer", "fine-tuning", "prompt engineering", "rlhf",
	"reinforcement learning", "diffusion model", "embedding", "tokenizer",
	"inference", "gpu", "tpu", "cuda", "h100", "context window",
	"chain of thought", "reasoning model", "mixture of experts",
	"quantization", "distillation", "scaling laws",
	// Applications
	"computer vision", "natural language processing", "nlp",
	"speech recognition", "text-to-image", "text-to-video", "code generation",
	"autonomous driving", "self-driving", "robotics", "chatbot",
	"retrieval augmented generation", "rag", "ai agent", "function calling",
	// Safety, policy, research
	"ai safety", "ai alignment", "ai ethics", "ai regulation", "ai act",
	"hallucination", "jailbreak", "prompt injection", "interpretability",
	"red teaming", "arxiv", "neurips", "icml", "benchmark",
}

// IsAIRelated reports whether the article text mentions any AI keyword.
// Short keywords are matched on word boundaries to avoid substrings like
// "ai" inside "maintain".
func IsAIRelated(title, content string) bool {
	text := strings.ToLower(title + " " + content)
	fields := fieldSet(text)
	for _, keyword := range aiKeywords {
		if strings.ContainsRune(keyword, ' ') || len(keyword) > 4 {
			if strings.Contains(text, keyword) {
				return true
			}
			continue
		}
		if _, ok := fields[keyword]; ok {
			return true
		}
	}
	return false
}

func fieldSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-')
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.Trim(w, "-")] = struct{}{}
	}
	return set
}
