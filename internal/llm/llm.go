// Package llm wraps the Gemini API behind a small interface so pipeline
// stages can be exercised against deterministic stubs.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model used for clustering, merging and
// scoring calls.
const DefaultModel = "gemini-2.5-flash-lite"

// Generator issues one structured-output LLM call. Implementations must
// return the raw JSON text of the response; callers own parsing and repair.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Client is the Gemini-backed Generator.
type Client struct {
	modelName   string
	temperature float32
	timeout     time.Duration
	gClient     *genai.Client
}

// Options configures a Client.
type Options struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// NewClient creates a Gemini client. The API key is resolved from (in order)
// the GEMINI_API_KEY, GOOGLE_GEMINI_API_KEY and GOOGLE_AI_API_KEY environment
// variables, then the gemini.api_key config value.
func NewClient(opts Options) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in the config file")
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:   model,
		temperature: float32(opts.Temperature),
		timeout:     timeout,
		gClient:     gClient,
	}, nil
}

// GenerateJSON sends the prompt with a JSON response schema and returns the
// response text. The call is bounded by the client's timeout.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", c.modelName)
	}
	return text, nil
}
