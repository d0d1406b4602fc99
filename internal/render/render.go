// Package render turns a categorized corpus into the Markdown briefing
// document and writes it to disk.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daybrief/internal/core"
)

// Briefing is everything one rendered document covers.
type Briefing struct {
	News      core.Corpus
	TechNews  core.Corpus
	Research  core.Corpus
	Citations core.CitationResult
}

// RenderMarkdown produces the briefing document. The date in the heading
// comes from the news corpus when set, otherwise from now.
func RenderMarkdown(b Briefing) string {
	date := b.News.GeneratedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# Daily Briefing - %s\n\n", date.Format("2006-01-02"))

	writeCorpus(&md, "News", b.News)
	writeCorpus(&md, "Tech", b.TechNews)
	writeCorpus(&md, "Research", b.Research)
	writeCitations(&md, b.Citations)

	return md.String()
}

func writeCorpus(md *strings.Builder, heading string, corpus core.Corpus) {
	if corpusEmpty(corpus) {
		return
	}
	fmt.Fprintf(md, "## %s\n\n", heading)

	writeClusters(md, "Developing stories", corpus.Continuing, true)
	writeClusters(md, "New today", corpus.New, false)
	writeDormant(md, corpus.Dormant)
	writeSingles(md, corpus.Singles)
}

// writeClusters renders multi-article clusters. withTotals adds the
// "N articles, M today" context used for developing stories.
func writeClusters(md *strings.Builder, heading string, clusters []core.Cluster, withTotals bool) {
	if len(clusters) == 0 {
		return
	}
	fmt.Fprintf(md, "### %s\n\n", heading)
	for _, c := range clusters {
		if withTotals {
			fmt.Fprintf(md, "**%s** (%d articles, %d today)\n\n", c.Label, c.TotalCount, c.TodayCount)
		} else {
			fmt.Fprintf(md, "**%s** (%d articles)\n\n", c.Label, c.TotalCount)
		}
		for _, a := range c.Articles {
			fmt.Fprintf(md, "- [%s](%s)", a.Title, a.URL)
			if a.Summary != "" {
				fmt.Fprintf(md, " - %s", truncate(a.Summary, 200))
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}
}

func writeDormant(md *strings.Builder, clusters []core.Cluster) {
	if len(clusters) == 0 {
		return
	}
	md.WriteString("### Gone quiet\n\n")
	for _, c := range clusters {
		fmt.Fprintf(md, "- %s (%d articles earlier this week)\n", c.RepresentativeTitle, c.TotalCount)
	}
	md.WriteString("\n")
}

func writeSingles(md *strings.Builder, clusters []core.Cluster) {
	if len(clusters) == 0 {
		return
	}
	md.WriteString("### Also today\n\n")
	for _, c := range clusters {
		for _, a := range c.Articles {
			fmt.Fprintf(md, "- [%s](%s)", a.Title, a.URL)
			if a.Summary != "" {
				fmt.Fprintf(md, " - %s", truncate(a.Summary, 160))
			}
			md.WriteString("\n")
		}
	}
	md.WriteString("\n")
}

func writeCitations(md *strings.Builder, result core.CitationResult) {
	if len(result.Papers) == 0 && result.Error == "" {
		return
	}
	md.WriteString("## Most-cited papers\n\n")

	if len(result.Papers) == 0 {
		fmt.Fprintf(md, "*No citation data available: %s*\n\n", result.Error)
		return
	}
	for i, p := range result.Papers {
		title := p.Title
		if title == "" {
			title = p.ArxivID
		}
		fmt.Fprintf(md, "%d. [%s](%s) - %d citations this window\n", i+1, title, p.URL, p.CitationCount)
		if len(p.Authors) > 0 {
			fmt.Fprintf(md, "   %s\n", strings.Join(p.Authors, ", "))
		}
	}
	md.WriteString("\n")
	if result.Error != "" {
		fmt.Fprintf(md, "*Note: %s*\n\n", result.Error)
	}
}

// WriteBriefingToFile writes the rendered content under outputDir as
// briefing_YYYY-MM-DD.md and returns the path.
func WriteBriefingToFile(content, outputDir string, date time.Time) (string, error) {
	if outputDir == "" {
		outputDir = "briefings"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filePath := filepath.Join(outputDir, fmt.Sprintf("briefing_%s.md", date.Format("2006-01-02")))
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write briefing file %s: %w", filePath, err)
	}
	return filePath, nil
}

func corpusEmpty(corpus core.Corpus) bool {
	return len(corpus.New) == 0 && len(corpus.Continuing) == 0 &&
		len(corpus.Dormant) == 0 && len(corpus.Singles) == 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
