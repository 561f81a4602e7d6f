// Package dedup removes articles already seen within the cache retention
// window, matching by slug only.
package dedup

import (
	"fmt"
	"time"

	"ainews/internal/cache"
	"ainews/internal/core"
	"ainews/internal/logger"
)

// Stats counts the work done by one deduplication run.
type Stats struct {
	InputArticles       int     `json:"input_articles"`
	CacheArticles       int     `json:"cache_articles"`
	DuplicatesFound     int     `json:"duplicates_found"`
	UniqueArticles      int     `json:"unique_articles"`
	DeduplicationRate   float64 `json:"deduplication_rate"`
	CacheFilesLoaded    int     `json:"cache_files_loaded"`
	CacheFilesCorrupted int     `json:"cache_files_corrupted"`
}

// Result is the outcome of one deduplication run.
type Result struct {
	Unique       []core.Article `json:"unique_articles"`
	Stats        Stats          `json:"stats"`
	CacheUpdated bool           `json:"cache_updated"`
}

// Deduplicator filters a batch of articles against the cache store.
type Deduplicator struct {
	store         *cache.Store
	retentionDays int
}

// New creates a Deduplicator reading from the given store with the given
// retention window in days.
func New(store *cache.Store, retentionDays int) *Deduplicator {
	return &Deduplicator{store: store, retentionDays: retentionDays}
}

// Run deduplicates the batch against the cached articles from the retention
// window and against itself (first occurrence wins). Unique articles are
// persisted to today's partition; an empty unique set leaves the store
// untouched. Cached articles are authoritative: an incoming article whose
// slug is already cached is dropped, never merged.
func (d *Deduplicator) Run(now time.Time, articles []core.Article) (Result, error) {
	cached, loadStats, err := d.store.LoadArticlesWindow(now, d.retentionDays)
	if err != nil {
		return Result{}, fmt.Errorf("dedup: %w", err)
	}
	logger.Info("Loaded cached articles for dedup",
		"count", len(cached),
		"files_loaded", loadStats.FilesLoaded,
		"files_corrupted", loadStats.FilesCorrupted,
	)

	seen := make(map[string]struct{}, len(cached))
	for _, a := range cached {
		seen[a.Slug] = struct{}{}
	}

	var unique []core.Article
	duplicates := 0
	for _, a := range articles {
		if _, ok := seen[a.Slug]; ok {
			duplicates++
			logger.Debug("Duplicate article dropped", "slug", a.Slug)
			continue
		}
		seen[a.Slug] = struct{}{}
		unique = append(unique, a)
	}

	rate := 0.0
	if len(articles) > 0 {
		rate = float64(duplicates) / float64(len(articles))
	}

	result := Result{
		Unique: unique,
		Stats: Stats{
			InputArticles:       len(articles),
			CacheArticles:       len(cached),
			DuplicatesFound:     duplicates,
			UniqueArticles:      len(unique),
			DeduplicationRate:   rate,
			CacheFilesLoaded:    loadStats.FilesLoaded,
			CacheFilesCorrupted: loadStats.FilesCorrupted,
		},
	}

	if len(unique) > 0 {
		if err := d.store.SaveArticles(now, unique); err != nil {
			return Result{}, fmt.Errorf("dedup: %w", err)
		}
		result.CacheUpdated = true
	}

	logger.Info("Article deduplication completed",
		"input", result.Stats.InputArticles,
		"duplicates", result.Stats.DuplicatesFound,
		"unique", result.Stats.UniqueArticles,
		"rate", fmt.Sprintf("%.1f%%", rate*100),
	)
	return result, nil
}
