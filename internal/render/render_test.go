package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"daybrief/internal/core"
)

var renderNow = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

func sampleCorpus() core.Corpus {
	return core.Corpus{
		Continuing: []core.Cluster{{
			ID:         "cluster_0",
			Label:      "Big Merger Saga",
			TotalCount: 5,
			TodayCount: 2,
			Status:     core.StatusContinuing,
			Articles: []core.Article{
				{URL: "https://ex.com/m1", Title: "Merger clears review", Summary: "Regulators sign off."},
				{URL: "https://ex.com/m2", Title: "Merger reactions"},
			},
		}},
		New: []core.Cluster{{
			ID:         "cluster_1",
			Label:      "New Framework Released",
			TotalCount: 2,
			TodayCount: 2,
			Status:     core.StatusNew,
			Articles: []core.Article{
				{URL: "https://ex.com/f1", Title: "Framework 1.0"},
				{URL: "https://ex.com/f2", Title: "Framework hands-on"},
			},
		}},
		Dormant: []core.Cluster{{
			ID:                  "cluster_2",
			RepresentativeTitle: "Chip shortage coverage",
			TotalCount:          4,
			Status:              core.StatusDormant,
		}},
		Singles: []core.Cluster{{
			ID:       "cluster_3",
			Status:   core.StatusSingle,
			Articles: []core.Article{{URL: "https://ex.com/s1", Title: "One-off story"}},
		}},
		GeneratedAt: renderNow,
	}
}

func TestRenderMarkdownSections(t *testing.T) {
	md := RenderMarkdown(Briefing{News: sampleCorpus()})

	for _, want := range []string{
		"# Daily Briefing - 2025-01-02",
		"## News",
		"### Developing stories",
		"**Big Merger Saga** (5 articles, 2 today)",
		"[Merger clears review](https://ex.com/m1) - Regulators sign off.",
		"### New today",
		"**New Framework Released** (2 articles)",
		"### Gone quiet",
		"- Chip shortage coverage (4 articles earlier this week)",
		"### Also today",
		"[One-off story](https://ex.com/s1)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("rendered briefing missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdownSkipsEmptySections(t *testing.T) {
	md := RenderMarkdown(Briefing{News: sampleCorpus()})
	if strings.Contains(md, "## Tech") || strings.Contains(md, "## Research") {
		t.Errorf("empty sections should not render:\n%s", md)
	}
}

func TestRenderMarkdownCitations(t *testing.T) {
	briefing := Briefing{
		News: sampleCorpus(),
		Citations: core.CitationResult{
			Papers: []core.RankedPaper{
				{
					PaperInfo: core.PaperInfo{
						ArxivID: "2412.00001",
						Title:   "A Cited Paper",
						URL:     "https://arxiv.org/abs/2412.00001",
						Authors: []string{"First Author", "Second Author"},
					},
					CitationCount: 3,
				},
				{
					PaperInfo:     core.PaperInfo{ArxivID: "2412.00002", URL: "https://arxiv.org/abs/2412.00002"},
					CitationCount: 2,
				},
			},
		},
	}

	md := RenderMarkdown(briefing)
	for _, want := range []string{
		"## Most-cited papers",
		"1. [A Cited Paper](https://arxiv.org/abs/2412.00001) - 3 citations this window",
		"First Author, Second Author",
		"2. [2412.00002](https://arxiv.org/abs/2412.00002) - 2 citations this window",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("citation section missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdownDegradedCitations(t *testing.T) {
	md := RenderMarkdown(Briefing{
		News:      sampleCorpus(),
		Citations: core.CitationResult{Error: "citation service unreachable"},
	})
	if !strings.Contains(md, "No citation data available: citation service unreachable") {
		t.Errorf("expected inline degraded explanation:\n%s", md)
	}
}

func TestWriteBriefingToFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteBriefingToFile("# content\n", dir, renderNow)
	if err != nil {
		t.Fatalf("WriteBriefingToFile failed: %v", err)
	}
	if filepath.Base(path) != "briefing_2025-01-02.md" {
		t.Errorf("unexpected filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "# content\n" {
		t.Errorf("unexpected file contents: %q err=%v", data, err)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("word ", 60)
	got := truncate(long, 50)
	if len(got) > 54 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation: %q", got)
	}
	if truncate("short", 50) != "short" {
		t.Errorf("short strings must pass through")
	}
}
