package selection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ainews/internal/core"
	"ainews/internal/llm"

	"google.golang.org/genai"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	s.calls++
	return s.response, s.err
}

func fastRetry() llm.RetryPolicy {
	return llm.RetryPolicy{Attempts: 1, Delay: time.Millisecond}
}

func cluster(id string) core.NewsCluster {
	return core.NewsCluster{
		NewsID:       id,
		Title:        "Title " + id,
		Summary:      "Summary for " + id + " long enough to look like a real cluster summary.",
		ArticleSlugs: []string{id + "-a"},
		ArticleCount: 1,
	}
}

func TestRunEmptyInput(t *testing.T) {
	gen := &stubGenerator{}
	result, err := New(gen, Config{Retry: fastRetry()}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("empty input must not call the LLM, got %d calls", gen.calls)
	}
	if len(result.TopNews) != 0 || len(result.AllNews) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestRunRanksAndSelects(t *testing.T) {
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-a", "category": "model_release", "importance_score": 9.5, "reasoning": "major release"},
			{"news_id": "news-b", "category": "research", "importance_score": 4.0},
			{"news_id": "news-c", "category": "industry_news", "importance_score": 7.2}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b"), cluster("news-c")}

	result, err := New(gen, Config{TargetCount: 2, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.AllNews) != 3 {
		t.Fatalf("every cluster must be ranked, got %d", len(result.AllNews))
	}
	if len(result.TopNews) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(result.TopNews))
	}
	if result.TopNews[0].Cluster.NewsID != "news-a" || result.TopNews[1].Cluster.NewsID != "news-c" {
		t.Errorf("wrong ranking order: %q, %q", result.TopNews[0].Cluster.NewsID, result.TopNews[1].Cluster.NewsID)
	}
	if result.TopNews[0].Category != core.CategoryModelRelease {
		t.Errorf("unexpected category: %q", result.TopNews[0].Category)
	}
	if result.Distribution[core.CategoryResearch] != 1 {
		t.Errorf("distribution must cover all ranked news, got %+v", result.Distribution)
	}
}

func TestRunDefaultsForOmittedClusters(t *testing.T) {
	// The model only scores one of two clusters.
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-a", "category": "research", "importance_score": 8.0}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b")}

	result, err := New(gen, Config{TargetCount: 10, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.AllNews) != 2 {
		t.Fatalf("expected 2 ranked news, got %d", len(result.AllNews))
	}
	var omitted core.RankedNews
	for _, n := range result.AllNews {
		if n.Cluster.NewsID == "news-b" {
			omitted = n
		}
	}
	if omitted.Category != core.DefaultCategory || omitted.ImportanceScore != core.DefaultScore {
		t.Errorf("omitted cluster must get defaults, got %q / %g", omitted.Category, omitted.ImportanceScore)
	}
}

func TestRunClampsAndNormalizes(t *testing.T) {
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-a", "category": "breaking_news", "importance_score": 42.0},
			{"news_id": "news-b", "category": "research", "importance_score": -3.0}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b")}

	result, err := New(gen, Config{TargetCount: 10, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	byID := make(map[string]core.RankedNews)
	for _, n := range result.AllNews {
		byID[n.Cluster.NewsID] = n
	}
	if byID["news-a"].ImportanceScore != core.MaxScore {
		t.Errorf("score above the maximum must clamp to %g, got %g", core.MaxScore, byID["news-a"].ImportanceScore)
	}
	if byID["news-a"].Category != core.CategoryOther {
		t.Errorf("unknown category must map to other, got %q", byID["news-a"].Category)
	}
	if byID["news-b"].ImportanceScore != core.MinScore {
		t.Errorf("score below the minimum must clamp to %g, got %g", core.MinScore, byID["news-b"].ImportanceScore)
	}
}

func TestRunDropsBogusVerdicts(t *testing.T) {
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-ghost", "category": "research", "importance_score": 9.0},
			{"news_id": "news-a", "category": "research", "importance_score": 7.0},
			{"news_id": "news-a", "category": "industry_news", "importance_score": 1.0}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a")}

	result, err := New(gen, Config{TargetCount: 10, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.AllNews) != 1 {
		t.Fatalf("expected 1 ranked news, got %d", len(result.AllNews))
	}
	got := result.AllNews[0]
	if got.ImportanceScore != 7.0 || got.Category != core.CategoryResearch {
		t.Errorf("first verdict must win, got %q / %g", got.Category, got.ImportanceScore)
	}
}

func TestRunMinScoreFilter(t *testing.T) {
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-a", "category": "research", "importance_score": 8.0},
			{"news_id": "news-b", "category": "research", "importance_score": 2.0}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b")}

	result, err := New(gen, Config{TargetCount: 10, MinScore: 5.0, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.TopNews) != 1 || result.TopNews[0].Cluster.NewsID != "news-a" {
		t.Errorf("expected only the high scoring news, got %+v", result.TopNews)
	}
	// The filter narrows the selection, not the ranking.
	if len(result.AllNews) != 2 {
		t.Errorf("AllNews must keep every cluster, got %d", len(result.AllNews))
	}
}

func TestRunStableTieOrder(t *testing.T) {
	gen := &stubGenerator{response: `{
		"categorized_news": [
			{"news_id": "news-a", "category": "research", "importance_score": 5.0},
			{"news_id": "news-b", "category": "research", "importance_score": 5.0},
			{"news_id": "news-c", "category": "research", "importance_score": 5.0}
		]
	}`}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b"), cluster("news-c")}

	result, err := New(gen, Config{TargetCount: 10, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, want := range []string{"news-a", "news-b", "news-c"} {
		if result.TopNews[i].Cluster.NewsID != want {
			t.Errorf("tie order not stable at %d: got %q, want %q", i, result.TopNews[i].Cluster.NewsID, want)
		}
	}
}

func TestRunRetriesMalformedResponse(t *testing.T) {
	gen := &stubGenerator{response: "this is not json"}
	cfg := Config{
		TargetCount:        10,
		FallbackToDefaults: true,
		Retry:              llm.RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	}

	result, err := New(gen, cfg).Run(context.Background(), []core.NewsCluster{cluster("news-a")})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("malformed responses must use the full retry budget, got %d calls", gen.calls)
	}
	if !result.Stats.FallbackUsed || result.Stats.APIFailures != 1 {
		t.Errorf("unexpected stats: %+v", result.Stats)
	}
}

func TestRunFallbackToDefaults(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("model unavailable")}
	clusters := []core.NewsCluster{cluster("news-a"), cluster("news-b")}

	result, err := New(gen, Config{TargetCount: 10, FallbackToDefaults: true, Retry: fastRetry()}).Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Stats.FallbackUsed || result.Stats.APIFailures != 1 {
		t.Errorf("unexpected stats: %+v", result.Stats)
	}
	for _, n := range result.AllNews {
		if n.Category != core.DefaultCategory || n.ImportanceScore != core.DefaultScore {
			t.Errorf("fallback must apply defaults, got %q / %g", n.Category, n.ImportanceScore)
		}
	}
}

func TestRunFallbackDisabled(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("model unavailable")}

	_, err := New(gen, Config{TargetCount: 10, Retry: fastRetry()}).Run(context.Background(), []core.NewsCluster{cluster("news-a")})
	if err == nil {
		t.Fatal("expected an error when fallback is disabled")
	}
}
