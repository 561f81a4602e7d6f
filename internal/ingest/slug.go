package ingest

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

const (
	slugWordCount  = 4
	slugHashLength = 8
	maxSlugRetries = 10
)

var (
	slugStripRe      = regexp.MustCompile(`[^\w\s-]`)
	slugSpaceRe      = regexp.MustCompile(`\s+`)
	slugDashSquashRe = regexp.MustCompile(`-+`)
)

// GenerateSlug derives a stable slug from a title: the first four normalized
// words joined by dashes plus an eight character sha256 suffix of the raw
// title. Collisions against existingSlugs get a _N counter; more than ten
// collisions for one title is an error.
func GenerateSlug(title string, existingSlugs map[string]struct{}) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = slugStripRe.ReplaceAllString(normalized, "")
	normalized = slugSpaceRe.ReplaceAllString(normalized, " ")
	normalized = slugDashSquashRe.ReplaceAllString(normalized, "-")

	words := strings.Fields(normalized)
	if len(words) > slugWordCount {
		words = words[:slugWordCount]
	}
	wordPart := strings.Join(words, "-")

	base := fmt.Sprintf("%s-%s", wordPart, sha256sum(strings.TrimSpace(title))[:slugHashLength])

	slug := base
	for counter := 1; ; counter++ {
		if _, taken := existingSlugs[slug]; !taken {
			return slug, nil
		}
		if counter >= maxSlugRetries {
			return "", fmt.Errorf("too many slug collisions for title: %s", title)
		}
		slug = fmt.Sprintf("%s_%d", base, counter)
	}
}

func sha256sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
