// Package render writes the ranked news into a Markdown digest file.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"ainews/internal/core"
	"ainews/internal/logger"
)

const digestTemplate = `# AI News Digest — {{ .Date }}

{{ if not .Sections }}_No news selected today._
{{ end }}{{ range .Sections }}## {{ .Heading }}

{{ range .Items }}### {{ .Cluster.Title }} (score {{ printf "%.1f" .ImportanceScore }})

{{ .Cluster.Summary }}

{{ if .Cluster.Keywords }}*Keywords: {{ join .Cluster.Keywords ", " }}*

{{ end }}*Articles: {{ .Cluster.ArticleCount }}*

{{ end }}{{ end }}---
Generated at {{ .GeneratedAt }} from {{ .Total }} news item(s).
`

type section struct {
	Heading string
	Items   []core.RankedNews
}

type digestData struct {
	Date        string
	GeneratedAt string
	Total       int
	Sections    []section
}

// RenderDigest renders the ranked news as Markdown, grouped by category in
// the standard category order. Items keep their rank order within a section.
func RenderDigest(news []core.RankedNews, generatedAt time.Time) (string, error) {
	tmpl, err := template.New("digest").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(digestTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse digest template: %w", err)
	}

	byCategory := make(map[core.Category][]core.RankedNews)
	for _, n := range news {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}
	var sections []section
	for _, c := range core.Categories() {
		if items := byCategory[c]; len(items) > 0 {
			sections = append(sections, section{Heading: categoryHeading(c), Items: items})
		}
	}

	var b strings.Builder
	data := digestData{
		Date:        generatedAt.Format("2006-01-02"),
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Total:       len(news),
		Sections:    sections,
	}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return b.String(), nil
}

// WriteDigest renders the digest and writes it to <dir>/YYYY-MM-DD.md,
// creating the directory if needed. It returns the written path.
func WriteDigest(dir string, news []core.RankedNews, generatedAt time.Time) (string, error) {
	content, err := RenderDigest(news, generatedAt)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, generatedAt.Format("2006-01-02")+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write digest %s: %w", path, err)
	}
	logger.Info("Digest written", "path", path, "news", len(news))
	return path, nil
}

func categoryHeading(c core.Category) string {
	headings := map[core.Category]string{
		core.CategoryModelRelease: "Model Releases",
		core.CategoryResearch:     "Research",
		core.CategoryPolicy:       "Policy & Regulation",
		core.CategoryFunding:      "Funding & Acquisitions",
		core.CategoryProduct:      "Product Launches",
		core.CategoryPartnership:  "Partnerships",
		core.CategoryEthicsSafety: "Ethics & Safety",
		core.CategoryIndustry:     "Industry News",
		core.CategoryOther:        "Other",
	}
	if h, ok := headings[c]; ok {
		return h
	}
	return string(c)
}
