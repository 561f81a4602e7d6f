package core

import (
	"testing"
	"unicode/utf8"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"model_release", CategoryModelRelease},
		{"research", CategoryResearch},
		{"policy_regulation", CategoryPolicy},
		{"other", CategoryOther},
		{"breaking_news", CategoryOther},
		{"", CategoryOther},
		{"Model_Release", CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategoriesComplete(t *testing.T) {
	cats := Categories()
	if len(cats) != 9 {
		t.Fatalf("expected 9 categories, got %d", len(cats))
	}
	seen := make(map[Category]struct{}, len(cats))
	for _, c := range cats {
		if _, dup := seen[c]; dup {
			t.Errorf("category %q listed twice", c)
		}
		seen[c] = struct{}{}
	}
	if cats[len(cats)-1] != CategoryOther {
		t.Errorf("other must come last, got %q", cats[len(cats)-1])
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{5.0, 5.0},
		{0.0, 0.0},
		{10.0, 10.0},
		{-1.5, 0.0},
		{42.0, 10.0},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},
		{"日本語のニュース", 4, "日"},
		{"日本語", 3, "日"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateText(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateText(%q, %d) produced invalid UTF-8: %q", tt.in, tt.max, got)
		}
		if len(got) > tt.max {
			t.Errorf("TruncateText(%q, %d) exceeds the byte bound: %d bytes", tt.in, tt.max, len(got))
		}
	}
}

func TestTruncateTextAtTitleBound(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "ニュース"
	}
	got := TruncateText(long, MaxTitleLen)
	if !utf8.ValidString(got) {
		t.Errorf("truncated title is invalid UTF-8: %q", got)
	}
	if len(got) > MaxTitleLen {
		t.Errorf("truncated title exceeds %d bytes: %d", MaxTitleLen, len(got))
	}
}

func TestIsSingleton(t *testing.T) {
	single := NewsCluster{ArticleSlugs: []string{"a"}, ArticleCount: 1}
	if !single.IsSingleton() {
		t.Error("one article must be a singleton")
	}
	multi := NewsCluster{ArticleSlugs: []string{"a", "b"}, ArticleCount: 2}
	if multi.IsSingleton() {
		t.Error("two articles must not be a singleton")
	}
}
