// Package citations builds a directed citation graph over recently published
// arXiv papers and ranks them by in-degree. Reference lists come from an
// external citation service through a persistent SQLite cache; every network
// failure degrades the result instead of aborting the analysis.
package citations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// Analyzer defaults.
const (
	DefaultTopN         = 10
	DefaultMinCitations = 2
	DefaultConcurrency  = 2
)

// PaperSource lists recent papers and resolves metadata. *ArxivClient is the
// production implementation.
type PaperSource interface {
	RecentPapers(ctx context.Context, categories []string, cutoff time.Time) []core.PaperInfo
	FetchMetadata(ctx context.Context, ids []string) (map[string]core.PaperInfo, error)
}

// ReferenceSource resolves the papers a given paper cites. *ReferenceClient
// is the production implementation.
type ReferenceSource interface {
	References(ctx context.Context, arxivID string) ([]string, error)
}

// Analyzer runs the citation analysis pipeline.
type Analyzer struct {
	store       *Store
	papers      PaperSource
	refs        ReferenceSource
	maxAge      time.Duration
	concurrency int64
	clock       func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxAge overrides how long cached reference lists stay fresh.
func WithMaxAge(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.maxAge = d
		}
	}
}

// WithConcurrency bounds parallel reference fetches.
func WithConcurrency(n int64) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithAnalyzerClock injects the time source, for tests.
func WithAnalyzerClock(clock func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.clock = clock }
}

// NewAnalyzer wires the analyzer from its three collaborators.
func NewAnalyzer(store *Store, papers PaperSource, refs ReferenceSource, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		store:       store,
		papers:      papers,
		refs:        refs,
		maxAge:      DefaultMaxAge,
		concurrency: DefaultConcurrency,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze collects papers published in the last days, resolves their
// reference lists (cache first, service on miss), and returns the most-cited
// papers. The result's Error field describes degraded mode; the method
// itself never fails.
func (a *Analyzer) Analyze(ctx context.Context, days, topN, minCitations int, categories []string) core.CitationResult {
	now := a.clock()
	if topN <= 0 {
		topN = DefaultTopN
	}
	if minCitations <= 0 {
		minCitations = DefaultMinCitations
	}
	result := core.CitationResult{
		Params: core.CitationParams{
			Days:         days,
			TopN:         topN,
			MinCitations: minCitations,
			Categories:   categories,
		},
		GeneratedAt: now,
	}

	papers := a.papers.RecentPapers(ctx, categories, now.Add(-time.Duration(days)*24*time.Hour))
	if len(papers) == 0 {
		result.Error = "no recent papers found"
		return result
	}

	graph := core.NewCitationGraph()
	for _, p := range papers {
		graph.Papers[p.ArxivID] = p
	}

	failures := a.collectEdges(ctx, papers, graph, now)

	result.Papers = a.selectTop(ctx, graph, topN, minCitations)
	if failures > 0 {
		result.Error = fmt.Sprintf("reference lookup failed for %d of %d papers", failures, len(papers))
	}
	return result
}

// AnalyzeFromCache rebuilds the graph from the SQLite cache alone, with no
// fresh paper collection. Metadata for papers missing from the cache may
// still be fetched from the arXiv API during enrichment.
func (a *Analyzer) AnalyzeFromCache(ctx context.Context, topN, minCitations int) core.CitationResult {
	now := a.clock()
	if topN <= 0 {
		topN = DefaultTopN
	}
	if minCitations <= 0 {
		minCitations = DefaultMinCitations
	}
	result := core.CitationResult{
		Params:      core.CitationParams{TopN: topN, MinCitations: minCitations},
		GeneratedAt: now,
	}

	edges, err := a.store.AllEdges()
	if err != nil {
		logger.Error("citation cache read failed", err, nil)
		result.Error = "citation cache unreadable"
		return result
	}

	graph := core.NewCitationGraph()
	for _, e := range edges {
		graph.AddEdge(e.Cited, e.Citing)
	}

	result.Papers = a.selectTop(ctx, graph, topN, minCitations)
	return result
}

// collectEdges resolves each paper's reference list with bounded concurrency
// and feeds the edges into the graph. Returns the number of papers whose
// references could not be resolved at all.
func (a *Analyzer) collectEdges(ctx context.Context, papers []core.PaperInfo, graph *core.CitationGraph, now time.Time) int {
	sem := semaphore.NewWeighted(a.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for _, paper := range papers {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failures++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(paper core.PaperInfo) {
			defer wg.Done()
			defer sem.Release(1)

			cited, ok := a.resolveReferences(ctx, paper, now)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				failures++
				return
			}
			// In-degree counts distinct citing papers, so repeated cited
			// IDs from one paper collapse to a single edge.
			seen := make(map[string]bool, len(cited))
			for _, id := range cited {
				if seen[id] {
					continue
				}
				seen[id] = true
				graph.AddEdge(id, paper.ArxivID)
			}
		}(paper)
	}
	wg.Wait()
	return failures
}

// resolveReferences returns a paper's cited IDs, preferring fresh cache rows
// and falling back to stale rows when the service call fails. The second
// return is false when nothing could be resolved.
func (a *Analyzer) resolveReferences(ctx context.Context, paper core.PaperInfo, now time.Time) ([]string, bool) {
	state, err := a.store.ReferenceFreshness(paper.ArxivID, a.maxAge, now)
	if err != nil {
		logger.Error("citation cache lookup failed", err, map[string]interface{}{"paper": paper.ArxivID})
		state = Absent
	}

	if state == Fresh {
		cited, found, err := a.store.References(paper.ArxivID)
		if err == nil && found {
			return cited, true
		}
	}

	cited, err := a.refs.References(ctx, paper.ArxivID)
	if err != nil {
		logger.Warn("reference fetch failed", map[string]interface{}{
			"paper": paper.ArxivID,
			"error": err.Error(),
		})
		// A failed fetch leaves the cache state unchanged; stale rows are
		// still better than nothing.
		if state == Stale {
			if cached, found, cacheErr := a.store.References(paper.ArxivID); cacheErr == nil && found {
				return cached, true
			}
		}
		return nil, false
	}

	if err := a.store.SaveReferences(paper.ArxivID, cited, now); err != nil {
		logger.Error("citation cache write failed", err, map[string]interface{}{"paper": paper.ArxivID})
	}
	if err := a.store.SavePaper(paper, now); err != nil {
		logger.Error("paper cache write failed", err, map[string]interface{}{"paper": paper.ArxivID})
	}
	return cited, true
}

// selectTop picks the most-cited papers and enriches them with metadata.
// Order: in-degree descending, arXiv ID ascending on ties.
func (a *Analyzer) selectTop(ctx context.Context, graph *core.CitationGraph, topN, minCitations int) []core.RankedPaper {
	var ids []string
	for id, degree := range graph.InDegree {
		if degree >= minCitations {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := graph.InDegree[ids[i]], graph.InDegree[ids[j]]
		if di != dj {
			return di > dj
		}
		return ids[i] < ids[j]
	})
	if len(ids) > topN {
		ids = ids[:topN]
	}
	if len(ids) == 0 {
		return nil
	}

	enriched := a.enrich(ctx, graph, ids)

	ranked := make([]core.RankedPaper, 0, len(ids))
	for _, id := range ids {
		info, ok := enriched[id]
		if !ok {
			// Placeholder metadata: the ranking is still valid.
			info = core.PaperInfo{ArxivID: id, URL: fmt.Sprintf("https://arxiv.org/abs/%s", id)}
		}
		ranked = append(ranked, core.RankedPaper{
			PaperInfo:     info,
			CitationCount: graph.InDegree[id],
		})
	}
	return ranked
}

// enrich resolves display metadata for the selected papers: graph first,
// then the citation store, then the arXiv API for whatever is left. Misses
// are tolerated.
func (a *Analyzer) enrich(ctx context.Context, graph *core.CitationGraph, ids []string) map[string]core.PaperInfo {
	enriched := make(map[string]core.PaperInfo, len(ids))
	var missing []string
	for _, id := range ids {
		if info, ok := graph.Papers[id]; ok && info.Title != "" {
			enriched[id] = info
			continue
		}
		if a.store != nil {
			if info, found, err := a.store.Paper(id); err == nil && found && info.Title != "" {
				enriched[id] = info
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 || a.papers == nil {
		return enriched
	}

	fetched, err := a.papers.FetchMetadata(ctx, missing)
	if err != nil {
		logger.Warn("metadata enrichment failed", map[string]interface{}{
			"papers": len(missing),
			"error":  err.Error(),
		})
		return enriched
	}
	for id, info := range fetched {
		enriched[id] = info
		if a.store != nil {
			if err := a.store.SavePaper(info, a.clock()); err != nil {
				logger.Error("paper cache write failed", err, map[string]interface{}{"paper": id})
			}
		}
	}
	return enriched
}
