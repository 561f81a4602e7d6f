package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes one RSS/Atom feed source.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
	Enabled  bool   `yaml:"enabled"`
}

type feedsFile struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file and returns the enabled
// feeds. Priorities outside [1, 10] are clamped.
func LoadFeeds(path string) ([]FeedConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file %s: %w", path, err)
	}
	var file feedsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file %s: %w", path, err)
	}

	var feeds []FeedConfig
	for _, f := range file.Feeds {
		if !f.Enabled {
			continue
		}
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("feeds file %s: every feed needs a name and a url", path)
		}
		if f.Priority < 1 {
			f.Priority = 1
		}
		if f.Priority > 10 {
			f.Priority = 10
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// RSS is the wire structure of an RSS 2.0 feed.
type RSS struct {
	Channel Channel `xml:"channel"`
}

// Channel is an RSS channel.
type Channel struct {
	Title string    `xml:"title"`
	Items []RSSItem `xml:"item"`
}

// RSSItem is a single RSS item.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	GUID        string `xml:"guid"`
}

// Atom is the wire structure of an Atom feed.
type Atom struct {
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// AtomLink is an Atom link element.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry is a single Atom entry.
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Author    struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// linkHref picks the alternate (or first) link of an Atom entry.
func linkHref(links []AtomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}
