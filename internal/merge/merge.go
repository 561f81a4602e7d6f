// Package merge detects news clusters that repeat a story already published
// within the lookback window and merges them, so the same event is never
// presented twice across days.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ainews/internal/cache"
	"ainews/internal/core"
	"ainews/internal/llm"
	"ainews/internal/logger"

	"google.golang.org/genai"
)

// Config controls one merge run.
type Config struct {
	LookbackDays        int
	SimilarityThreshold float64
	FallbackToNoMerge   bool
	Retry               llm.RetryPolicy
}

// Stats counts the work done by one merge run.
type Stats struct {
	NewsBeforeDedup     int  `json:"news_before_dedup"`
	NewsAfterDedup      int  `json:"news_after_dedup"`
	DuplicatesFound     int  `json:"duplicates_found"`
	NewsMerged          int  `json:"news_merged"`
	APICalls            int  `json:"api_calls"`
	APIFailures         int  `json:"api_failures"`
	CacheFilesLoaded    int  `json:"cache_files_loaded"`
	CacheFilesCorrupted int  `json:"cache_files_corrupted"`
	FallbackUsed        bool `json:"fallback_used"`
}

// Result is the outcome of one merge run.
type Result struct {
	News  []core.NewsCluster `json:"news"`
	Stats Stats              `json:"stats"`
}

// Engine runs the cross-day merge step.
type Engine struct {
	gen   llm.Generator
	store *cache.Store
	cfg   Config
}

// New creates an Engine reading candidate clusters from the given store.
func New(gen llm.Generator, store *cache.Store, cfg Config) *Engine {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 3
	}
	return &Engine{gen: gen, store: store, cfg: cfg}
}

// duplicatePair is one LLM-judged duplicate: a cluster from today matching a
// cluster from the lookback cache.
type duplicatePair struct {
	TodayID  string `json:"news_today_id"`
	CachedID string `json:"news_cached_id"`
	Reason   string `json:"merge_reason"`
}

type mergeResponse struct {
	DuplicatePairs []duplicatePair `json:"duplicate_pairs"`
}

// Run merges today's clusters against the lookback cache. Empty input
// short-circuits with empty output and no LLM call; an empty cache passes
// today's clusters through. For each matched pair the cluster with the larger
// article count becomes the merge base, ties preferring today's cluster. The
// result is persisted as today's news partition.
func (e *Engine) Run(ctx context.Context, now time.Time, todayNews []core.NewsCluster) (Result, error) {
	var result Result
	result.Stats.NewsBeforeDedup = len(todayNews)

	if len(todayNews) == 0 {
		logger.Info("No news to merge, skipping")
		return result, nil
	}

	cached, loadStats, err := e.store.LoadNewsWindow(now, e.cfg.LookbackDays)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	result.Stats.CacheFilesLoaded = loadStats.FilesLoaded
	result.Stats.CacheFilesCorrupted = loadStats.FilesCorrupted
	logger.Info("Loaded cached news for merge",
		"count", len(cached),
		"lookback_days", e.cfg.LookbackDays,
		"files_corrupted", loadStats.FilesCorrupted,
	)

	if len(cached) == 0 {
		result.News = todayNews
		result.Stats.NewsAfterDedup = len(todayNews)
		if err := e.store.SaveNews(now, result.News); err != nil {
			return Result{}, fmt.Errorf("merge: %w", err)
		}
		return result, nil
	}

	// A malformed response burns an attempt like a failed call.
	var pairs []duplicatePair
	callErr := e.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		raw, innerErr := e.gen.GenerateJSON(ctx, buildMergePrompt(todayNews, cached, e.cfg), mergeSchema())
		if innerErr != nil {
			return innerErr
		}
		var resp mergeResponse
		if jsonErr := json.Unmarshal([]byte(raw), &resp); jsonErr != nil {
			return fmt.Errorf("failed to parse merge response: %w", jsonErr)
		}
		pairs = resp.DuplicatePairs
		return nil
	})
	result.Stats.APICalls++

	if callErr != nil {
		result.Stats.APIFailures++
		if !e.cfg.FallbackToNoMerge {
			return result, fmt.Errorf("cross-day merge failed and fallback is disabled: %w", callErr)
		}
		logger.Warn("Merge call failed, keeping today's news unmerged", "error", callErr.Error())
		result.Stats.FallbackUsed = true
		result.News = todayNews
		result.Stats.NewsAfterDedup = len(todayNews)
		if err := e.store.SaveNews(now, result.News); err != nil {
			return Result{}, fmt.Errorf("merge: %w", err)
		}
		return result, nil
	}

	result.Stats.DuplicatesFound = len(pairs)
	merged, mergedCount := mergePairs(todayNews, cached, pairs, now)
	result.News = merged
	result.Stats.NewsMerged = mergedCount
	result.Stats.NewsAfterDedup = len(merged)

	if err := e.store.SaveNews(now, result.News); err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}

	logger.Info("Cross-day merge completed",
		"before", result.Stats.NewsBeforeDedup,
		"after", result.Stats.NewsAfterDedup,
		"merged", result.Stats.NewsMerged,
	)
	return result, nil
}

// mergePairs applies the LLM-judged duplicate pairs. The output is the union
// of cached and today's clusters with each matched pair collapsed into its
// base. Pairs referencing unknown IDs are skipped.
func mergePairs(todayNews, cached []core.NewsCluster, pairs []duplicatePair, now time.Time) ([]core.NewsCluster, int) {
	todayByID := make(map[string]core.NewsCluster, len(todayNews))
	for _, n := range todayNews {
		todayByID[n.NewsID] = n
	}
	cachedByID := make(map[string]core.NewsCluster, len(cached))
	for _, n := range cached {
		cachedByID[n.NewsID] = n
	}

	mergedTodayIDs := make(map[string]struct{})
	mergedCachedIDs := make(map[string]struct{})
	result := make([]core.NewsCluster, len(cached))
	copy(result, cached)
	mergedCount := 0

	for _, pair := range pairs {
		todayItem, okToday := todayByID[pair.TodayID]
		cachedItem, okCached := cachedByID[pair.CachedID]
		if !okToday || !okCached {
			logger.Warn("Merge pair references unknown news, skipping",
				"today_id", pair.TodayID, "cached_id", pair.CachedID)
			continue
		}
		if _, done := mergedTodayIDs[pair.TodayID]; done {
			logger.Warn("Today's news already merged, skipping pair", "today_id", pair.TodayID)
			continue
		}
		// A cached cluster can be the merge target of at most one pair per
		// run; a later pair would merge against its stale pre-merge state and
		// lose the first pair's articles.
		if _, done := mergedCachedIDs[pair.CachedID]; done {
			logger.Warn("Cached news already merged, skipping pair", "cached_id", pair.CachedID)
			continue
		}

		// The richer cluster wins; on equal counts today's cluster is the base.
		base, other := todayItem, cachedItem
		if cachedItem.ArticleCount > todayItem.ArticleCount {
			base, other = cachedItem, todayItem
		}
		updated := mergeInto(base, other, now)

		if base.NewsID == cachedItem.NewsID {
			for i := range result {
				if result[i].NewsID == cachedItem.NewsID {
					result[i] = updated
					break
				}
			}
		} else {
			// Base is today's cluster; drop the cached duplicate and carry
			// the merged cluster with today's identity.
			kept := result[:0]
			for _, n := range result {
				if n.NewsID != cachedItem.NewsID {
					kept = append(kept, n)
				}
			}
			result = append(kept, updated)
		}

		mergedTodayIDs[pair.TodayID] = struct{}{}
		mergedCachedIDs[pair.CachedID] = struct{}{}
		mergedCount++
		logger.Info("Merged duplicate news",
			"base", base.NewsID,
			"absorbed", other.NewsID,
			"articles", updated.ArticleCount,
			"reason", pair.Reason,
		)
	}

	for _, n := range todayNews {
		if _, done := mergedTodayIDs[n.NewsID]; !done {
			result = append(result, n)
		}
	}
	return result, mergedCount
}

// mergeInto absorbs other into base: slugs are appended without duplicates,
// keywords unioned up to the cap, and the count recomputed. The merge is
// additive only; no article from either side is ever dropped.
func mergeInto(base, other core.NewsCluster, now time.Time) core.NewsCluster {
	merged := base
	merged.ArticleSlugs = make([]string, len(base.ArticleSlugs))
	copy(merged.ArticleSlugs, base.ArticleSlugs)

	present := make(map[string]struct{}, len(base.ArticleSlugs))
	for _, s := range base.ArticleSlugs {
		present[s] = struct{}{}
	}
	for _, s := range other.ArticleSlugs {
		if _, ok := present[s]; ok {
			continue
		}
		present[s] = struct{}{}
		merged.ArticleSlugs = append(merged.ArticleSlugs, s)
	}
	merged.ArticleCount = len(merged.ArticleSlugs)

	merged.Keywords = make([]string, len(base.Keywords))
	copy(merged.Keywords, base.Keywords)
	known := make(map[string]struct{}, len(base.Keywords))
	for _, k := range base.Keywords {
		known[k] = struct{}{}
	}
	for _, k := range other.Keywords {
		if len(merged.Keywords) >= core.MaxKeywords {
			break
		}
		if _, ok := known[k]; ok {
			continue
		}
		known[k] = struct{}{}
		merged.Keywords = append(merged.Keywords, k)
	}

	merged.UpdatedAt = now
	return merged
}

func buildMergePrompt(todayNews, cached []core.NewsCluster, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a news deduplication system. Compare today's AI news
against news already published within the last %d days and identify pairs that
describe the SAME news event or story. Treat two items as duplicates only when
they clearly cover the same event (similarity roughly %.2f or higher), not
merely the same broad topic.

**Today's news** (%d items):
%s

**Previously published news** (%d items):
%s

Return only the pairs that are true duplicates, each with a brief merge
reason. Unmatched news must not appear in the output.`,
		cfg.LookbackDays, cfg.SimilarityThreshold,
		len(todayNews), formatNewsForPrompt(todayNews),
		len(cached), formatNewsForPrompt(cached))
	return b.String()
}

func formatNewsForPrompt(news []core.NewsCluster) string {
	var lines []string
	for i, n := range news {
		summary := n.Summary
		if len(summary) > 200 {
			summary = core.TruncateText(summary, 200) + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. [ID: %s] %s\n   Summary: %s\n   Topic: %s | Articles: %d | Created: %s",
			i+1, n.NewsID, n.Title, summary, n.MainTopic, n.ArticleCount, n.CreatedAt.Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n\n")
}

func mergeSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"duplicate_pairs": {
				Type:        genai.TypeArray,
				Description: "News pairs that describe the same event or story",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"news_today_id":  {Type: genai.TypeString, Description: "News ID from today's clustering"},
						"news_cached_id": {Type: genai.TypeString, Description: "News ID from the lookback cache"},
						"merge_reason":   {Type: genai.TypeString, Description: "Why they are the same story (max 150 chars)"},
					},
					Required: []string{"news_today_id", "news_cached_id", "merge_reason"},
				},
			},
		},
		Required: []string{"duplicate_pairs"},
	}
}
