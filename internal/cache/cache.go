// Package cache provides the date-partitioned file store used by the
// pipeline. Articles and news clusters are persisted one JSON file per
// calendar day; reads are filtered by a retention window and skip corrupted
// partitions instead of failing the whole load.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ainews/internal/core"
	"ainews/internal/logger"
)

const (
	articlesSubdir = "articles"
	newsSubdir     = "news"
	dateLayout     = "2006-01-02"
	newsFilePrefix = "news_"
)

// Store is a handle to the on-disk cache rooted at a single directory.
type Store struct {
	dir string
}

// LoadStats counts partition files seen during a windowed load.
type LoadStats struct {
	FilesLoaded    int
	FilesCorrupted int
}

// Stats summarizes the current cache contents.
type Stats struct {
	ArticleFiles int
	Articles     int
	NewsFiles    int
	News         int
	SizeBytes    int64
}

// NewStore opens a cache store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string {
	return s.dir
}

// articlesFile is the on-disk shape of a daily articles partition.
type articlesFile struct {
	Date       time.Time      `json:"date"`
	Articles   []core.Article `json:"articles"`
	TotalCount int            `json:"total_count"`
}

// newsFile is the on-disk shape of a daily news partition.
type newsFile struct {
	Data     []core.NewsCluster `json:"data"`
	CachedAt time.Time          `json:"cached_at"`
}

// SaveArticles persists articles into the partition for the given day. If the
// partition already exists its contents are merged in by slug, so repeated
// runs on the same day accumulate rather than overwrite. A partition that
// exists but fails to parse is replaced.
func (s *Store) SaveArticles(date time.Time, articles []core.Article) error {
	path := s.articlesPath(date)

	existing := s.loadExistingArticles(path)
	merged := make([]core.Article, 0, len(existing)+len(articles))
	seen := make(map[string]int, len(existing))
	for _, a := range existing {
		seen[a.Slug] = len(merged)
		merged = append(merged, a)
	}
	for _, a := range articles {
		if i, ok := seen[a.Slug]; ok {
			merged[i] = a
			continue
		}
		seen[a.Slug] = len(merged)
		merged = append(merged, a)
	}

	day := articlesFile{Date: date, Articles: merged, TotalCount: len(merged)}
	if err := s.writeJSON(path, day); err != nil {
		return fmt.Errorf("failed to save articles partition %s: %w", date.Format(dateLayout), err)
	}
	logger.Debug("Saved articles partition", "file", filepath.Base(path), "new", len(articles), "total", len(merged))
	return nil
}

func (s *Store) loadExistingArticles(path string) []core.Article {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var day articlesFile
	if err := json.Unmarshal(raw, &day); err != nil {
		logger.Warn("Existing articles partition is unreadable, overwriting", "file", filepath.Base(path), "error", err.Error())
		return nil
	}
	return day.Articles
}

// LoadArticlesWindow returns every article from partitions dated within the
// retention window ending at now. Corrupted partitions (unparsable filename
// date, malformed JSON, or a count mismatch) are skipped and counted; they
// never abort the load. A missing articles directory yields an empty result.
func (s *Store) LoadArticlesWindow(now time.Time, windowDays int) ([]core.Article, LoadStats, error) {
	var stats LoadStats
	dir := filepath.Join(s.dir, articlesSubdir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read articles cache directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -windowDays)
	var articles []core.Article
	for _, entry := range sortedJSONFiles(entries) {
		date, err := time.Parse(dateLayout, strings.TrimSuffix(entry, ".json"))
		if err != nil {
			logger.Warn("Skipping articles partition with malformed date", "file", entry)
			stats.FilesCorrupted++
			continue
		}
		if date.Before(cutoff) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry))
		if err != nil {
			logger.Warn("Skipping unreadable articles partition", "file", entry, "error", err.Error())
			stats.FilesCorrupted++
			continue
		}
		var day articlesFile
		if err := json.Unmarshal(raw, &day); err != nil {
			logger.Warn("Skipping corrupted articles partition", "file", entry, "error", err.Error())
			stats.FilesCorrupted++
			continue
		}
		if day.TotalCount != len(day.Articles) {
			logger.Warn("Skipping articles partition with count mismatch", "file", entry, "total_count", day.TotalCount, "articles", len(day.Articles))
			stats.FilesCorrupted++
			continue
		}
		articles = append(articles, day.Articles...)
		stats.FilesLoaded++
	}
	return articles, stats, nil
}

// SaveNews persists news clusters as the partition for the given day,
// replacing any previous content for that day.
func (s *Store) SaveNews(date time.Time, news []core.NewsCluster) error {
	path := s.newsPath(date)
	file := newsFile{Data: news, CachedAt: time.Now().UTC()}
	if err := s.writeJSON(path, file); err != nil {
		return fmt.Errorf("failed to save news partition %s: %w", date.Format(dateLayout), err)
	}
	logger.Debug("Saved news partition", "file", filepath.Base(path), "count", len(news))
	return nil
}

// LoadNewsWindow returns every news cluster from partitions dated within the
// lookback window ending at now, with the same corruption-skipping behavior
// as LoadArticlesWindow.
func (s *Store) LoadNewsWindow(now time.Time, lookbackDays int) ([]core.NewsCluster, LoadStats, error) {
	var stats LoadStats
	dir := filepath.Join(s.dir, newsSubdir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read news cache directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -lookbackDays)
	var news []core.NewsCluster
	for _, entry := range sortedJSONFiles(entries) {
		stem := strings.TrimSuffix(entry, ".json")
		date, err := time.Parse(dateLayout, strings.TrimPrefix(stem, newsFilePrefix))
		if err != nil {
			logger.Warn("Skipping news partition with malformed date", "file", entry)
			stats.FilesCorrupted++
			continue
		}
		if date.Before(cutoff) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry))
		if err != nil {
			logger.Warn("Skipping unreadable news partition", "file", entry, "error", err.Error())
			stats.FilesCorrupted++
			continue
		}
		var file newsFile
		if err := json.Unmarshal(raw, &file); err != nil {
			logger.Warn("Skipping corrupted news partition", "file", entry, "error", err.Error())
			stats.FilesCorrupted++
			continue
		}
		news = append(news, file.Data...)
		stats.FilesLoaded++
	}
	return news, stats, nil
}

// Clean deletes partitions older than the given retention windows and
// returns the number of files removed.
func (s *Store) Clean(now time.Time, articleRetentionDays, newsRetentionDays int) (int, error) {
	removed := 0
	kinds := []struct {
		dir    string
		prefix string
		days   int
	}{
		{filepath.Join(s.dir, articlesSubdir), "", articleRetentionDays},
		{filepath.Join(s.dir, newsSubdir), newsFilePrefix, newsRetentionDays},
	}
	for _, kind := range kinds {
		entries, err := os.ReadDir(kind.dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read cache directory %s: %w", kind.dir, err)
		}
		cutoff := now.AddDate(0, 0, -kind.days)
		for _, entry := range sortedJSONFiles(entries) {
			stem := strings.TrimPrefix(strings.TrimSuffix(entry, ".json"), kind.prefix)
			date, err := time.Parse(dateLayout, stem)
			if err != nil {
				continue
			}
			if !date.Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(kind.dir, entry)); err != nil {
				return removed, fmt.Errorf("failed to remove expired partition %s: %w", entry, err)
			}
			logger.Info("Removed expired cache partition", "file", entry)
			removed++
		}
	}
	return removed, nil
}

// CollectStats walks the cache and reports partition and record counts.
func (s *Store) CollectStats() (Stats, error) {
	var stats Stats

	articleEntries, err := os.ReadDir(filepath.Join(s.dir, articlesSubdir))
	if err != nil && !os.IsNotExist(err) {
		return stats, fmt.Errorf("failed to read articles cache directory: %w", err)
	}
	for _, entry := range sortedJSONFiles(articleEntries) {
		path := filepath.Join(s.dir, articlesSubdir, entry)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		stats.SizeBytes += int64(len(raw))
		var day articlesFile
		if err := json.Unmarshal(raw, &day); err != nil {
			continue
		}
		stats.ArticleFiles++
		stats.Articles += len(day.Articles)
	}

	newsEntries, err := os.ReadDir(filepath.Join(s.dir, newsSubdir))
	if err != nil && !os.IsNotExist(err) {
		return stats, fmt.Errorf("failed to read news cache directory: %w", err)
	}
	for _, entry := range sortedJSONFiles(newsEntries) {
		path := filepath.Join(s.dir, newsSubdir, entry)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		stats.SizeBytes += int64(len(raw))
		var file newsFile
		if err := json.Unmarshal(raw, &file); err != nil {
			continue
		}
		stats.NewsFiles++
		stats.News += len(file.Data)
	}

	return stats, nil
}

func (s *Store) articlesPath(date time.Time) string {
	return filepath.Join(s.dir, articlesSubdir, date.Format(dateLayout)+".json")
}

func (s *Store) newsPath(date time.Time) string {
	return filepath.Join(s.dir, newsSubdir, newsFilePrefix+date.Format(dateLayout)+".json")
}

// writeJSON marshals v and writes it to path via a temp file and rename, so
// a crash mid-write leaves either the old content or the new, never half of
// each.
func (s *Store) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal partition: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace partition file: %w", err)
	}
	return nil
}

// sortedJSONFiles filters directory entries down to .json files in name
// order. Temp files from interrupted writes are ignored.
func sortedJSONFiles(entries []os.DirEntry) []string {
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
