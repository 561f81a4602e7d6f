// Package cluster groups deduplicated articles into news clusters with a
// single LLM call, repairing the model's output so that every input article
// lands in exactly one cluster.
package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ainews/internal/core"
	"ainews/internal/llm"
	"ainews/internal/logger"

	"google.golang.org/genai"
)

// Config controls one clustering run.
type Config struct {
	MaxClusters         int
	FallbackToSingleton bool
	Retry               llm.RetryPolicy
}

// Stats counts the work done by one clustering run.
type Stats struct {
	TotalClusters        int  `json:"total_clusters"`
	SingletonClusters    int  `json:"singleton_clusters"`
	MultiArticleClusters int  `json:"multi_article_clusters"`
	ArticlesClustered    int  `json:"articles_clustered"`
	APICalls             int  `json:"api_calls"`
	APIFailures          int  `json:"api_failures"`
	FallbackUsed         bool `json:"fallback_used"`
}

// Result is the outcome of one clustering run.
type Result struct {
	Clusters []core.NewsCluster `json:"clusters"`
	Stats    Stats              `json:"stats"`
}

// Orchestrator runs the clustering step.
type Orchestrator struct {
	gen llm.Generator
	cfg Config
}

// New creates an Orchestrator using the given generator.
func New(gen llm.Generator, cfg Config) *Orchestrator {
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 20
	}
	return &Orchestrator{gen: gen, cfg: cfg}
}

// clusteringResponse is the JSON shape expected from the LLM.
type clusteringResponse struct {
	Clusters []proposedCluster `json:"clusters"`
}

type proposedCluster struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	MainTopic    string   `json:"main_topic"`
	Keywords     []string `json:"keywords"`
	ArticleSlugs []string `json:"article_slugs"`
}

// Run clusters the articles. Empty input short-circuits with an empty result
// and no LLM call. On LLM failure after retries the run degrades to singleton
// clusters when fallback is enabled, and fails otherwise.
func (o *Orchestrator) Run(ctx context.Context, articles []core.Article) (Result, error) {
	if len(articles) == 0 {
		logger.Info("No articles to cluster, skipping")
		return Result{}, nil
	}

	var result Result
	now := time.Now().UTC()

	// A malformed response burns an attempt like a failed call; the model may
	// produce valid JSON on the next try.
	var proposed []proposedCluster
	err := o.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		raw, callErr := o.gen.GenerateJSON(ctx, buildClusteringPrompt(articles, o.cfg.MaxClusters), clusteringSchema())
		if callErr != nil {
			return callErr
		}
		var resp clusteringResponse
		if jsonErr := json.Unmarshal([]byte(raw), &resp); jsonErr != nil {
			return fmt.Errorf("failed to parse clustering response: %w", jsonErr)
		}
		proposed = resp.Clusters
		return nil
	})
	result.Stats.APICalls++
	if err == nil {
		result.Clusters = repairClusters(proposed, articles, now)
	}

	if err != nil {
		result.Stats.APIFailures++
		if !o.cfg.FallbackToSingleton {
			result.Clusters = nil
			fillStats(&result)
			return result, fmt.Errorf("clustering failed and fallback is disabled: %w", err)
		}
		logger.Warn("Clustering call failed, falling back to singleton clusters", "error", err.Error())
		result.Clusters = SingletonClusters(articles, now)
		result.Stats.FallbackUsed = true
	}

	fillStats(&result)
	logger.Info("Clustering completed",
		"clusters", result.Stats.TotalClusters,
		"singletons", result.Stats.SingletonClusters,
		"articles", result.Stats.ArticlesClustered,
		"fallback", result.Stats.FallbackUsed,
	)
	return result, nil
}

func fillStats(r *Result) {
	r.Stats.TotalClusters = len(r.Clusters)
	r.Stats.SingletonClusters = 0
	r.Stats.ArticlesClustered = 0
	for _, c := range r.Clusters {
		if c.IsSingleton() {
			r.Stats.SingletonClusters++
		}
		r.Stats.ArticlesClustered += c.ArticleCount
	}
	r.Stats.MultiArticleClusters = r.Stats.TotalClusters - r.Stats.SingletonClusters
}

// repairClusters turns the LLM's proposal into valid clusters: unknown slugs
// are dropped, slugs assigned more than once keep their first assignment, and
// slugs the model forgot become singleton clusters. Empty proposals vanish.
func repairClusters(proposed []proposedCluster, articles []core.Article, now time.Time) []core.NewsCluster {
	bySlug := make(map[string]core.Article, len(articles))
	for _, a := range articles {
		bySlug[a.Slug] = a
	}

	assigned := make(map[string]struct{}, len(articles))
	var clusters []core.NewsCluster
	for _, p := range proposed {
		var slugs []string
		for _, slug := range p.ArticleSlugs {
			if _, known := bySlug[slug]; !known {
				logger.Warn("Clustering response references unknown slug", "slug", slug)
				continue
			}
			if _, dup := assigned[slug]; dup {
				logger.Warn("Slug assigned to more than one cluster, keeping first", "slug", slug)
				continue
			}
			assigned[slug] = struct{}{}
			slugs = append(slugs, slug)
		}
		if len(slugs) == 0 {
			continue
		}

		c := core.NewsCluster{
			Title:        strings.TrimSpace(p.Title),
			Summary:      strings.TrimSpace(p.Summary),
			MainTopic:    p.MainTopic,
			Keywords:     capKeywords(p.Keywords),
			ArticleSlugs: slugs,
			ArticleCount: len(slugs),
			CreatedAt:    now,
		}
		first := bySlug[slugs[0]]
		if c.Title == "" {
			c.Title = singletonTitle(first.Title)
		}
		if c.Summary == "" {
			c.Summary = singletonSummary(first)
		}
		checkTextBounds(c)
		c.NewsID = NewsID(c.Title, c.ArticleSlugs)
		clusters = append(clusters, c)
	}

	// Forgotten articles become singletons.
	for _, a := range articles {
		if _, ok := assigned[a.Slug]; ok {
			continue
		}
		logger.Warn("Article missing from clustering response, creating singleton", "slug", a.Slug)
		clusters = append(clusters, singleton(a, now))
	}
	return clusters
}

// SingletonClusters builds one cluster per article. Used as the fallback when
// the LLM is unavailable.
func SingletonClusters(articles []core.Article, now time.Time) []core.NewsCluster {
	clusters := make([]core.NewsCluster, 0, len(articles))
	for _, a := range articles {
		clusters = append(clusters, singleton(a, now))
	}
	return clusters
}

func singleton(a core.Article, now time.Time) core.NewsCluster {
	c := core.NewsCluster{
		Title:        singletonTitle(a.Title),
		Summary:      singletonSummary(a),
		MainTopic:    "singleton",
		Keywords:     titleKeywords(a.Title),
		ArticleSlugs: []string{a.Slug},
		ArticleCount: 1,
		CreatedAt:    now,
	}
	c.NewsID = NewsID(c.Title, c.ArticleSlugs)
	return c
}

func singletonTitle(title string) string {
	t := title
	if len(t) < core.MinTitleLen {
		t = "News: " + t
	}
	return core.TruncateText(t, core.MaxTitleLen)
}

func singletonSummary(a core.Article) string {
	if len(a.Content) >= core.MinSummaryLen {
		return core.TruncateText(a.Content, core.MaxSummaryLen)
	}
	s := fmt.Sprintf("News about %s. Published by %s. This article discusses %s.",
		a.Title, a.FeedName, strings.ToLower(a.Title))
	return core.TruncateText(s, core.MaxSummaryLen)
}

func titleKeywords(title string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) > 4 {
			keywords = append(keywords, w)
		}
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

func capKeywords(keywords []string) []string {
	if len(keywords) > core.MaxKeywords {
		return keywords[:core.MaxKeywords]
	}
	return keywords
}

// checkTextBounds logs out-of-bound titles and summaries. They are a
// data-quality signal, not a rejection.
func checkTextBounds(c core.NewsCluster) {
	if len(c.Title) < core.MinTitleLen || len(c.Title) > core.MaxTitleLen {
		logger.Warn("Cluster title outside sanity bounds", "len", len(c.Title), "title", c.Title)
	}
	if len(c.Summary) < core.MinSummaryLen || len(c.Summary) > core.MaxSummaryLen {
		logger.Warn("Cluster summary outside sanity bounds", "len", len(c.Summary))
	}
}

// NewsID derives a cluster ID from the title and the sorted member slugs:
// "news-" followed by the first 12 hex characters of the sha256 digest.
func NewsID(title string, slugs []string) string {
	sorted := make([]string, len(slugs))
	copy(sorted, slugs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(title + ":" + strings.Join(sorted, "|")))
	return fmt.Sprintf("news-%x", sum)[:17]
}

func buildClusteringPrompt(articles []core.Article, maxClusters int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an AI news clustering system.
Your task is to group similar AI news articles into coherent news topics.

**Input Articles** (%d articles):
`, len(articles))
	for i, a := range articles {
		preview := core.TruncateText(a.Content, 200)
		published := "unknown"
		if !a.PublishedAt.IsZero() {
			published = a.PublishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n   Source: %s | Published: %s\n   Preview: %s\n\n",
			i+1, a.Slug, a.Title, a.FeedName, published, strings.TrimSpace(preview))
	}
	fmt.Fprintf(&b, `**Clustering Instructions**:
1. Group articles that discuss the SAME news event or topic
2. Articles about different aspects of the same story should be in one cluster
3. Maximum %d clusters
4. Singleton clusters are OK
5. Each cluster needs a clear title (10-150 chars), a summary (50-500 chars)
   covering all articles, the main topic category, keywords (max 10), and the
   list of article slugs included

**Important**:
- Be precise: only group truly related articles
- Prefer specific clusters over generic grouping
- Include ALL %d articles in the output (no article left behind)`, maxClusters, len(articles))
	return b.String()
}

func clusteringSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"clusters": {
				Type:        genai.TypeArray,
				Description: "Identified news clusters covering every input article",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":      {Type: genai.TypeString, Description: "News title (10-150 chars)"},
						"summary":    {Type: genai.TypeString, Description: "News summary (50-500 chars)"},
						"main_topic": {Type: genai.TypeString, Description: "Main topic, e.g. 'model release'"},
						"keywords": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
						"article_slugs": {
							Type:        genai.TypeArray,
							Description: "Slugs of the articles in this cluster",
							Items:       &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"title", "summary", "article_slugs"},
				},
			},
		},
		Required: []string{"clusters"},
	}
}
