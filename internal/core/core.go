// Package core defines the shared data model for the briefing engine.
package core

import (
	"strings"
	"time"
)

// SourceType identifies how a source is fetched.
type SourceType string

const (
	SourceRSS     SourceType = "rss"      // RSS/Atom feed
	SourceScrape  SourceType = "scrape"   // generic scraped HTML page
	SourceTLDR    SourceType = "tldr"     // TLDR-style newsletter page
	SourceHNDaily SourceType = "hn-daily" // Hacker News daily digest page
)

// Source describes a configured information stream.
type Source struct {
	Name string     `json:"name"`          // Short human source tag
	URL  string     `json:"url,omitempty"` // May be empty for tldr/hn-daily (built from today's date)
	Type SourceType `json:"type"`          // How to fetch this source
}

// Article is the normalized record every fetcher produces. Identity is the
// trimmed URL; two articles with the same URL are the same article.
type Article struct {
	URL         string    `json:"url"`                    // Canonical identity
	Title       string    `json:"title"`                  // HTML-stripped title
	Summary     string    `json:"summary,omitempty"`      // HTML-stripped summary, may be empty
	Source      string    `json:"source"`                 // Source tag (e.g., "Ars Technica")
	PublishedAt time.Time `json:"published_at"`           // Naive UTC, used for windowing
	DateGuessed bool      `json:"date_guessed,omitempty"` // True when the feed date was unparseable and "now" was substituted
	Keywords    []string  `json:"keywords,omitempty"`     // Optional keyword set seeded by the feed
	Vector      []float64 `json:"vector,omitempty"`       // Unit-norm embedding, empty until embedded
	ClusterID   string    `json:"-"`                      // Assigned by the clusterer, never persisted
}

// Key returns the article's identity: the URL with surrounding whitespace trimmed.
func (a Article) Key() string {
	return strings.TrimSpace(a.URL)
}

// HasVector reports whether the article carries a usable (non-zero) embedding.
func (a Article) HasVector() bool {
	for _, v := range a.Vector {
		if v != 0 {
			return true
		}
	}
	return false
}

// Status classifies a story cluster relative to the today window.
type Status string

const (
	StatusNew        Status = "new"        // All articles inside the today window, total >= 2
	StatusContinuing Status = "continuing" // Articles both inside and outside the today window
	StatusDormant    Status = "dormant"    // No articles in the today window, total >= 2 previously
	StatusSingle     Status = "single"     // Exactly one article
)

// Cluster is a group of related articles forming one story.
type Cluster struct {
	ID                  string    `json:"id"`
	Label               string    `json:"label"`                // First article's title until a generated label replaces it
	Articles            []Article `json:"articles"`             // Displayed articles (today-subset for continuing, empty for dormant)
	TotalCount          int       `json:"total_count"`          // Size across the corpus window
	TodayCount          int       `json:"today_count"`          // Size within the today window
	Status              Status    `json:"status"`
	RepresentativeTitle string    `json:"representative_title"` // Retained even when Articles is cleared (dormant)
}

// Corpus is the categorized, ranked output of a briefing run.
type Corpus struct {
	New         []Cluster `json:"new"`
	Continuing  []Cluster `json:"continuing"`
	Dormant     []Cluster `json:"dormant"`
	Singles     []Cluster `json:"singles"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PaperInfo holds arXiv paper metadata for the citation analyzer.
type PaperInfo struct {
	ArxivID        string    `json:"arxiv_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors,omitempty"`
	Published      time.Time `json:"published,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	URL            string    `json:"url,omitempty"`
	TotalCitations int       `json:"total_citations,omitempty"`
}

// CitationGraph accumulates directed citation edges (cited <- citing) over a
// set of recently seen papers. InDegree is the primary ranking score.
type CitationGraph struct {
	CitingPapers map[string]bool      // arXiv IDs seen as citing papers
	InDegree     map[string]int       // cited arXiv ID -> distinct citing paper count
	Papers       map[string]PaperInfo // Metadata for both citing and cited papers
}

// NewCitationGraph returns an empty graph ready for accumulation.
func NewCitationGraph() *CitationGraph {
	return &CitationGraph{
		CitingPapers: make(map[string]bool),
		InDegree:     make(map[string]int),
		Papers:       make(map[string]PaperInfo),
	}
}

// AddEdge records a citation edge cited <- citing. Callers are expected to
// deduplicate edges before adding; the citation cache's primary key does this.
func (g *CitationGraph) AddEdge(cited, citing string) {
	g.InDegree[cited]++
	g.CitingPapers[citing] = true
}

// RankedPaper is a paper selected by the citation analyzer.
type RankedPaper struct {
	PaperInfo
	CitationCount int `json:"citation_count"` // In-degree within the analyzed window
}

// CitationParams records the parameters a citation analysis ran with.
type CitationParams struct {
	Days         int      `json:"days"`
	TopN         int      `json:"top_n"`
	MinCitations int      `json:"min_citations"`
	Categories   []string `json:"categories,omitempty"`
}

// CitationResult is the citation analyzer's public result. Error is set when
// the analysis completed in degraded mode; the paper list is still valid.
type CitationResult struct {
	Papers      []RankedPaper  `json:"papers"`
	Params      CitationParams `json:"params"`
	GeneratedAt time.Time      `json:"generated_at"`
	Error       string         `json:"error,omitempty"`
}
