// Package ingest fetches the configured RSS/Atom feeds, filters the items
// down to AI-related articles and assigns each a stable slug.
package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ainews/internal/core"
	"ainews/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

// Config controls one ingestion run.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxPerFeed    int
	MaxConcurrent int
}

// Stats counts the work done by one ingestion run.
type Stats struct {
	FeedsFetched        int `json:"feeds_fetched"`
	FeedsFailed         int `json:"feeds_failed"`
	TotalArticlesRaw    int `json:"total_articles_raw"`
	ArticlesAfterFilter int `json:"articles_after_filter"`
	SlugCollisions      int `json:"slug_collisions"`
}

// Result is the outcome of one ingestion run.
type Result struct {
	Articles []core.Article `json:"articles"`
	Stats    Stats          `json:"stats"`
}

// Ingestor fetches and filters feeds.
type Ingestor struct {
	client *http.Client
	cfg    Config
}

// New creates an Ingestor.
func New(cfg Config) *Ingestor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPerFeed <= 0 {
		cfg.MaxPerFeed = 50
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ainews/1.0"
	}
	return &Ingestor{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type fetchOutcome struct {
	feed     FeedConfig
	articles []rawItem
	err      error
}

// rawItem is a feed item before filtering and slug assignment.
type rawItem struct {
	title     string
	url       string
	content   string
	author    string
	published time.Time
}

// Run fetches every feed (bounded concurrency), filters to AI-related items
// and assigns slugs. Feed failures are counted, not fatal; the run only
// errors when the feed list itself is unusable.
func (in *Ingestor) Run(ctx context.Context, feeds []FeedConfig) (Result, error) {
	var result Result
	if len(feeds) == 0 {
		logger.Info("No feeds configured, nothing to ingest")
		return result, nil
	}

	outcomes := make([]fetchOutcome, len(feeds))
	sem := make(chan struct{}, in.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed FeedConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			items, err := in.fetchFeed(ctx, feed)
			outcomes[i] = fetchOutcome{feed: feed, articles: items, err: err}
		}(i, feed)
	}
	wg.Wait()

	existing := make(map[string]struct{})
	for _, out := range outcomes {
		if out.err != nil {
			logger.Warn("Feed fetch failed", "feed", out.feed.Name, "error", out.err.Error())
			result.Stats.FeedsFailed++
			continue
		}
		result.Stats.FeedsFetched++
		result.Stats.TotalArticlesRaw += len(out.articles)

		for _, item := range out.articles {
			if !IsAIRelated(item.title, item.content) {
				continue
			}
			slug, err := GenerateSlug(item.title, existing)
			if err != nil {
				logger.Warn("Dropping article with unresolvable slug", "title", item.title)
				continue
			}
			if strings.Contains(slug, "_") {
				result.Stats.SlugCollisions++
			}
			existing[slug] = struct{}{}
			result.Articles = append(result.Articles, core.Article{
				Slug:         slug,
				Title:        item.title,
				URL:          item.url,
				Content:      item.content,
				Author:       item.author,
				FeedName:     out.feed.Name,
				FeedPriority: out.feed.Priority,
				PublishedAt:  item.published,
				ContentHash:  contentHash(item.title, item.content),
			})
		}
	}
	result.Stats.ArticlesAfterFilter = len(result.Articles)

	// Newest first, so downstream prompts lead with fresh stories.
	sort.SliceStable(result.Articles, func(i, j int) bool {
		return result.Articles[i].PublishedAt.After(result.Articles[j].PublishedAt)
	})

	logger.Info("Ingestion completed",
		"feeds_fetched", result.Stats.FeedsFetched,
		"feeds_failed", result.Stats.FeedsFailed,
		"raw_articles", result.Stats.TotalArticlesRaw,
		"after_filter", result.Stats.ArticlesAfterFilter,
	)
	return result, nil
}

func (in *Ingestor) fetchFeed(ctx context.Context, feed FeedConfig) ([]rawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", feed.URL, err)
	}
	req.Header.Set("User-Agent", in.cfg.UserAgent)

	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feed.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feed.URL, err)
	}

	items, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feed.URL, err)
	}
	if len(items) > in.cfg.MaxPerFeed {
		items = items[:in.cfg.MaxPerFeed]
	}
	return items, nil
}

// parseFeed tries RSS 2.0 first, then Atom.
func parseFeed(body []byte) ([]rawItem, error) {
	var rss RSS
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		items := make([]rawItem, 0, len(rss.Channel.Items))
		for _, it := range rss.Channel.Items {
			items = append(items, rawItem{
				title:     strings.TrimSpace(it.Title),
				url:       strings.TrimSpace(it.Link),
				content:   stripHTML(it.Description),
				author:    strings.TrimSpace(it.Author),
				published: parseFeedTime(it.PubDate),
			})
		}
		return items, nil
	}

	var atom Atom
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		items := make([]rawItem, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			content := entry.Content
			if content == "" {
				content = entry.Summary
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			items = append(items, rawItem{
				title:     strings.TrimSpace(entry.Title),
				url:       linkHref(entry.Link),
				content:   stripHTML(content),
				author:    strings.TrimSpace(entry.Author.Name),
				published: parseFeedTime(published),
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("content is neither RSS nor Atom")
}

// feedTimeLayouts covers the date formats seen in the wild across RSS and
// Atom feeds.
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// stripHTML extracts the text content from an HTML fragment. Plain text
// passes through unchanged.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsRune(s, '<') {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}

func contentHash(title, content string) string {
	sum := sha256sum(title + "\n" + content)
	return sum[:16]
}
