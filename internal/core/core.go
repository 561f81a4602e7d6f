// Package core holds the data types shared across pipeline stages.
package core

import (
	"time"
	"unicode/utf8"
)

// Article represents a single ingested news item after slug assignment.
type Article struct {
	Slug         string    `json:"slug"`          // Stable identifier derived from the title
	Title        string    `json:"title"`         // Article title
	URL          string    `json:"url"`           // Article URL
	Content      string    `json:"content"`       // Article content or summary text
	Author       string    `json:"author"`        // Article author (may be empty)
	FeedName     string    `json:"feed_name"`     // Source feed name
	FeedPriority int       `json:"feed_priority"` // Source feed priority (1-10)
	PublishedAt  time.Time `json:"published_at"`  // Publication timestamp (zero if unknown)
	ContentHash  string    `json:"content_hash"`  // Hash of title+content, used for slug generation
}

// NewsCluster is a group of one or more articles judged to describe the same
// news event. Clusters are created by the clustering stage, may absorb other
// clusters during cross-day merging, and are scored by the selection stage.
type NewsCluster struct {
	NewsID       string    `json:"news_id"`       // Unique ID, format news-{12 hex chars}
	Title        string    `json:"title"`         // Cluster title
	Summary      string    `json:"summary"`       // Summary covering all member articles
	MainTopic    string    `json:"main_topic"`    // Main topic, e.g. "model release"
	Keywords     []string  `json:"keywords"`      // Extracted keywords, at most MaxKeywords
	ArticleSlugs []string  `json:"article_slugs"` // Member article slugs, never empty
	ArticleCount int       `json:"article_count"` // Always equals len(ArticleSlugs)
	CreatedAt    time.Time `json:"created_at"`    // Creation timestamp
	UpdatedAt    time.Time `json:"updated_at"`    // Last merge timestamp (zero if never merged)
}

// MaxKeywords bounds the keyword list carried by a cluster.
const MaxKeywords = 10

// Sanity bounds for LLM-produced cluster text. Values outside these ranges
// are logged as a data-quality signal but only empty values are replaced.
const (
	MinTitleLen   = 10
	MaxTitleLen   = 150
	MinSummaryLen = 50
	MaxSummaryLen = 500
)

// IsSingleton reports whether the cluster contains exactly one article.
func (c NewsCluster) IsSingleton() bool {
	return c.ArticleCount == 1
}

// Category classifies a news cluster.
type Category string

const (
	CategoryModelRelease Category = "model_release"
	CategoryResearch     Category = "research"
	CategoryPolicy       Category = "policy_regulation"
	CategoryFunding      Category = "funding_acquisition"
	CategoryProduct      Category = "product_launch"
	CategoryPartnership  Category = "partnership"
	CategoryEthicsSafety Category = "ethics_safety"
	CategoryIndustry     Category = "industry_news"
	CategoryOther        Category = "other"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryModelRelease,
		CategoryResearch,
		CategoryPolicy,
		CategoryFunding,
		CategoryProduct,
		CategoryPartnership,
		CategoryEthicsSafety,
		CategoryIndustry,
		CategoryOther,
	}
}

// ParseCategory maps a raw string onto a known category, falling back to
// CategoryOther for anything it does not recognize.
func ParseCategory(s string) Category {
	for _, c := range Categories() {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// Score bounds for cluster importance.
const (
	MinScore        = 0.0
	MaxScore        = 10.0
	DefaultScore    = 5.0
	DefaultCategory = CategoryOther
)

// ClampScore limits a raw importance score to [MinScore, MaxScore].
func ClampScore(s float64) float64 {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// TruncateText shortens s to at most max bytes without splitting a UTF-8
// rune. Titles and summaries come from feeds and the LLM, so multi-byte text
// is the norm, not the exception.
func TruncateText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// RankedNews is a news cluster with its assigned category and score.
type RankedNews struct {
	Cluster         NewsCluster `json:"cluster"`          // The underlying news cluster
	Category        Category    `json:"category"`         // Assigned category
	ImportanceScore float64     `json:"importance_score"` // Clamped to [0, 10]
	Reasoning       string      `json:"reasoning"`        // Brief LLM reasoning (may be empty)
}
