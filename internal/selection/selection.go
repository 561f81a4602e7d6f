// Package selection categorizes and scores news clusters with one LLM call,
// then picks the top ranked items for the digest.
package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ainews/internal/core"
	"ainews/internal/llm"
	"ainews/internal/logger"

	"google.golang.org/genai"
)

// Config controls one selection run.
type Config struct {
	TargetCount        int
	MinScore           float64
	FallbackToDefaults bool
	Retry              llm.RetryPolicy
}

// Stats counts the work done by one selection run.
type Stats struct {
	APICalls     int  `json:"api_calls"`
	APIFailures  int  `json:"api_failures"`
	FallbackUsed bool `json:"fallback_used"`
}

// Result is the outcome of one selection run.
type Result struct {
	TopNews      []core.RankedNews     `json:"top_news"`
	AllNews      []core.RankedNews     `json:"all_news"`
	Distribution map[core.Category]int `json:"distribution"`
	Stats        Stats                 `json:"stats"`
}

// Selector runs the selection step.
type Selector struct {
	gen llm.Generator
	cfg Config
}

// New creates a Selector using the given generator.
func New(gen llm.Generator, cfg Config) *Selector {
	if cfg.TargetCount <= 0 {
		cfg.TargetCount = 10
	}
	return &Selector{gen: gen, cfg: cfg}
}

type scoredItem struct {
	NewsID          string  `json:"news_id"`
	Category        string  `json:"category"`
	ImportanceScore float64 `json:"importance_score"`
	Reasoning       string  `json:"reasoning"`
}

type scoringResponse struct {
	CategorizedNews []scoredItem `json:"categorized_news"`
}

// Run categorizes and scores the clusters, then selects the top TargetCount
// by score. Empty input short-circuits with no LLM call. Clusters the LLM
// omits get the default category and score; out-of-range scores are clamped.
// When the LLM is unavailable and fallback is enabled, every cluster gets
// defaults instead of failing the step.
func (s *Selector) Run(ctx context.Context, clusters []core.NewsCluster) (Result, error) {
	result := Result{Distribution: map[core.Category]int{}}
	if len(clusters) == 0 {
		logger.Info("No news clusters to select, skipping")
		return result, nil
	}

	// A malformed response burns an attempt like a failed call.
	var items []scoredItem
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		raw, callErr := s.gen.GenerateJSON(ctx, buildScoringPrompt(clusters), scoringSchema())
		if callErr != nil {
			return callErr
		}
		var resp scoringResponse
		if jsonErr := json.Unmarshal([]byte(raw), &resp); jsonErr != nil {
			return fmt.Errorf("failed to parse scoring response: %w", jsonErr)
		}
		items = resp.CategorizedNews
		return nil
	})
	result.Stats.APICalls++

	if err != nil {
		result.Stats.APIFailures++
		if !s.cfg.FallbackToDefaults {
			return result, fmt.Errorf("selection failed and fallback is disabled: %w", err)
		}
		logger.Warn("Scoring call failed, applying default category and score", "error", err.Error())
		result.Stats.FallbackUsed = true
		items = nil
	}

	result.AllNews = rankClusters(clusters, items)

	// Stable sort keeps the original relative order on ties.
	sort.SliceStable(result.AllNews, func(i, j int) bool {
		return result.AllNews[i].ImportanceScore > result.AllNews[j].ImportanceScore
	})

	selected := result.AllNews
	if s.cfg.MinScore > core.MinScore {
		filtered := make([]core.RankedNews, 0, len(selected))
		for _, n := range selected {
			if n.ImportanceScore >= s.cfg.MinScore {
				filtered = append(filtered, n)
			}
		}
		selected = filtered
	}
	if len(selected) > s.cfg.TargetCount {
		selected = selected[:s.cfg.TargetCount]
	}
	result.TopNews = selected

	for _, n := range result.AllNews {
		result.Distribution[n.Category]++
	}

	logger.Info("Selection completed",
		"candidates", len(result.AllNews),
		"selected", len(result.TopNews),
		"min_score", s.cfg.MinScore,
		"fallback", result.Stats.FallbackUsed,
	)
	return result, nil
}

// rankClusters pairs every cluster with its LLM verdict, applying defaults
// for clusters the LLM omitted and dropping verdicts for unknown or repeated
// IDs.
func rankClusters(clusters []core.NewsCluster, items []scoredItem) []core.RankedNews {
	byID := make(map[string]core.NewsCluster, len(clusters))
	for _, c := range clusters {
		byID[c.NewsID] = c
	}

	verdicts := make(map[string]scoredItem, len(items))
	for _, item := range items {
		if item.NewsID == "" {
			logger.Warn("Scored item without news_id, skipping")
			continue
		}
		if _, ok := byID[item.NewsID]; !ok {
			logger.Warn("Scored item references unknown news, skipping", "news_id", item.NewsID)
			continue
		}
		if _, dup := verdicts[item.NewsID]; dup {
			logger.Warn("Duplicate scoring for news, keeping first", "news_id", item.NewsID)
			continue
		}
		verdicts[item.NewsID] = item
	}

	ranked := make([]core.RankedNews, 0, len(clusters))
	for _, c := range clusters {
		item, ok := verdicts[c.NewsID]
		if !ok {
			logger.Debug("News not scored by LLM, applying defaults", "news_id", c.NewsID)
			ranked = append(ranked, core.RankedNews{
				Cluster:         c,
				Category:        core.DefaultCategory,
				ImportanceScore: core.DefaultScore,
			})
			continue
		}
		ranked = append(ranked, core.RankedNews{
			Cluster:         c,
			Category:        core.ParseCategory(item.Category),
			ImportanceScore: core.ClampScore(item.ImportanceScore),
			Reasoning:       item.Reasoning,
		})
	}
	return ranked
}

func buildScoringPrompt(clusters []core.NewsCluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an AI news editor. Categorize each news item and rate
its importance for a daily AI news digest on a 0-10 scale (10 = front page,
0 = not worth mentioning). Weigh novelty, impact on the field, source quality
and reader engagement.

**Categories**:
%s

**News items** (%d items):
`, categoriesDescription(), len(clusters))
	for i, c := range clusters {
		summary := c.Summary
		if len(summary) > 200 {
			summary = core.TruncateText(summary, 200) + "..."
		}
		fmt.Fprintf(&b, "%d. [ID: %s] %s\n   Summary: %s\n   Topic: %s | Articles: %d | Keywords: %s\n\n",
			i+1, c.NewsID, c.Title, summary, c.MainTopic, c.ArticleCount, strings.Join(c.Keywords, ", "))
	}
	b.WriteString("Score and categorize every item; do not skip any.")
	return b.String()
}

func categoriesDescription() string {
	descriptions := map[core.Category]string{
		core.CategoryModelRelease: "New AI model releases, major updates to existing models",
		core.CategoryResearch:     "Research papers, academic findings, scientific breakthroughs",
		core.CategoryPolicy:       "AI policy, government regulations, legal frameworks",
		core.CategoryFunding:      "Funding rounds, investments, acquisitions",
		core.CategoryProduct:      "New AI products, features, services",
		core.CategoryPartnership:  "Company partnerships, collaborations, joint ventures",
		core.CategoryEthicsSafety: "AI safety, ethics, responsible AI, alignment",
		core.CategoryIndustry:     "Company announcements, industry trends, market news",
		core.CategoryOther:        "Other AI-related news that doesn't fit above categories",
	}
	var lines []string
	for _, c := range core.Categories() {
		lines = append(lines, fmt.Sprintf("- %s: %s", c, descriptions[c]))
	}
	return strings.Join(lines, "\n")
}

func scoringSchema() *genai.Schema {
	var categories []string
	for _, c := range core.Categories() {
		categories = append(categories, string(c))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"categorized_news": {
				Type:        genai.TypeArray,
				Description: "Every news item with its category and importance score",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"news_id":          {Type: genai.TypeString},
						"category":         {Type: genai.TypeString, Enum: categories},
						"importance_score": {Type: genai.TypeNumber, Description: "Importance score (0-10)"},
						"reasoning":        {Type: genai.TypeString, Description: "Brief reasoning (max 300 chars)"},
					},
					Required: []string{"news_id", "category", "importance_score"},
				},
			},
		},
		Required: []string{"categorized_news"},
	}
}
