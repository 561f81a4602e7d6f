package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>OpenAI releases new model</title>
      <link>https://example.com/openai-model</link>
      <description>&lt;p&gt;OpenAI shipped a &lt;b&gt;new model&lt;/b&gt; today.&lt;/p&gt;</description>
      <pubDate>Mon, 09 Mar 2026 10:00:00 +0000</pubDate>
      <author>reporter@example.com</author>
    </item>
    <item>
      <title>Gardening tips for spring</title>
      <link>https://example.com/gardening</link>
      <description>How to prepare your beds.</description>
      <pubDate>Mon, 09 Mar 2026 09:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Test</title>
  <entry>
    <title>Anthropic publishes interpretability research</title>
    <link rel="alternate" href="https://example.com/anthropic-research"/>
    <summary>New findings on model internals.</summary>
    <published>2026-03-09T08:30:00Z</published>
    <author><name>Jane Writer</name></author>
  </entry>
</feed>`

func TestParseFeedRSS(t *testing.T) {
	items, err := parseFeed([]byte(rssSample))
	if err != nil {
		t.Fatalf("parseFeed failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.title != "OpenAI releases new model" {
		t.Errorf("unexpected title: %q", first.title)
	}
	if first.url != "https://example.com/openai-model" {
		t.Errorf("unexpected url: %q", first.url)
	}
	if first.content != "OpenAI shipped a new model today." {
		t.Errorf("HTML must be stripped from the description, got %q", first.content)
	}
	want := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	if !first.published.Equal(want) {
		t.Errorf("unexpected pubDate: %v", first.published)
	}
}

func TestParseFeedAtom(t *testing.T) {
	items, err := parseFeed([]byte(atomSample))
	if err != nil {
		t.Fatalf("parseFeed failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(items))
	}
	entry := items[0]
	if entry.title != "Anthropic publishes interpretability research" {
		t.Errorf("unexpected title: %q", entry.title)
	}
	if entry.url != "https://example.com/anthropic-research" {
		t.Errorf("unexpected url: %q", entry.url)
	}
	if entry.author != "Jane Writer" {
		t.Errorf("unexpected author: %q", entry.author)
	}
}

func TestParseFeedGarbage(t *testing.T) {
	if _, err := parseFeed([]byte("this is not a feed")); err == nil {
		t.Error("expected an error for non-feed content")
	}
}

func TestParseFeedTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"Mon, 09 Mar 2026 10:00:00 +0000", false},
		{"Mon, 9 Mar 2026 10:00:00 -0700", false},
		{"2026-03-09T08:30:00Z", false},
		{"", true},
		{"not a date", true},
	}
	for _, tt := range tests {
		got := parseFeedTime(tt.in)
		if got.IsZero() != tt.zero {
			t.Errorf("parseFeedTime(%q) = %v, zero = %v", tt.in, got, tt.zero)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"plain text stays", "plain text stays"},
		{"", ""},
		{"<div><a href='x'>link</a> and text</div>", "link and text"},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLinkHref(t *testing.T) {
	links := []AtomLink{
		{Href: "https://example.com/self", Rel: "self"},
		{Href: "https://example.com/page", Rel: "alternate"},
	}
	if got := linkHref(links); got != "https://example.com/page" {
		t.Errorf("expected the alternate link, got %q", got)
	}
	if got := linkHref([]AtomLink{{Href: "https://example.com/only", Rel: "self"}}); got != "https://example.com/only" {
		t.Errorf("expected the only link as fallback, got %q", got)
	}
	if got := linkHref(nil); got != "" {
		t.Errorf("expected empty for no links, got %q", got)
	}
}

func TestRunFetchesAndFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssSample)
	}))
	defer server.Close()

	feeds := []FeedConfig{{Name: "Test Feed", URL: server.URL, Priority: 5, Enabled: true}}
	result, err := New(Config{}).Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stats.FeedsFetched != 1 || result.Stats.FeedsFailed != 0 {
		t.Errorf("unexpected feed stats: %+v", result.Stats)
	}
	if result.Stats.TotalArticlesRaw != 2 {
		t.Errorf("expected 2 raw articles, got %d", result.Stats.TotalArticlesRaw)
	}
	// The gardening item is filtered out.
	if result.Stats.ArticlesAfterFilter != 1 {
		t.Fatalf("expected 1 article after filter, got %d", result.Stats.ArticlesAfterFilter)
	}
	a := result.Articles[0]
	if a.Slug == "" {
		t.Error("article must get a slug")
	}
	if a.FeedName != "Test Feed" || a.FeedPriority != 5 {
		t.Errorf("feed metadata missing: %+v", a)
	}
	if a.ContentHash == "" {
		t.Error("article must carry a content hash")
	}
}

func TestRunCountsFailedFeeds(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssSample)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	feeds := []FeedConfig{
		{Name: "Good", URL: good.URL, Priority: 5, Enabled: true},
		{Name: "Bad", URL: bad.URL, Priority: 5, Enabled: true},
	}
	result, err := New(Config{}).Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("one failed feed must not abort the run: %v", err)
	}
	if result.Stats.FeedsFetched != 1 || result.Stats.FeedsFailed != 1 {
		t.Errorf("unexpected feed stats: %+v", result.Stats)
	}
	if result.Stats.ArticlesAfterFilter != 1 {
		t.Errorf("articles from the good feed must survive, got %d", result.Stats.ArticlesAfterFilter)
	}
}

func TestRunNoFeeds(t *testing.T) {
	result, err := New(Config{}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Articles) != 0 {
		t.Errorf("expected no articles, got %d", len(result.Articles))
	}
}

func TestRunRespectsMaxPerFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Big</title>`)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<item><title>AI story number %d</title><link>https://example.com/%d</link><description>About AI.</description></item>`, i, i)
		}
		fmt.Fprint(w, `</channel></rss>`)
	}))
	defer server.Close()

	feeds := []FeedConfig{{Name: "Big", URL: server.URL, Priority: 5, Enabled: true}}
	result, err := New(Config{MaxPerFeed: 3}).Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stats.TotalArticlesRaw != 3 {
		t.Errorf("expected the per-feed cap to apply, got %d raw articles", result.Stats.TotalArticlesRaw)
	}
}
