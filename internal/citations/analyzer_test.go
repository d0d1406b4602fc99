package citations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"daybrief/internal/core"
)

type stubPapers struct {
	papers  []core.PaperInfo
	meta    map[string]core.PaperInfo
	metaErr error
}

func (s *stubPapers) RecentPapers(ctx context.Context, categories []string, cutoff time.Time) []core.PaperInfo {
	return s.papers
}

func (s *stubPapers) FetchMetadata(ctx context.Context, ids []string) (map[string]core.PaperInfo, error) {
	return s.meta, s.metaErr
}

type stubRefs struct {
	mu    sync.Mutex
	refs  map[string][]string
	fail  map[string]bool
	calls map[string]int
}

func (s *stubRefs) References(ctx context.Context, arxivID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[arxivID]++
	if s.fail[arxivID] {
		return nil, errors.New("citation service timeout")
	}
	return s.refs[arxivID], nil
}

func (s *stubRefs) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func paperStub(id string) core.PaperInfo {
	return core.PaperInfo{ArxivID: id, Title: "Paper " + id, URL: "https://arxiv.org/abs/" + id}
}

func testAnalyzer(t *testing.T, papers PaperSource, refs ReferenceSource) *Analyzer {
	t.Helper()
	return NewAnalyzer(testStore(t), papers, refs, WithAnalyzerClock(func() time.Time { return storeNow }))
}

func TestAnalyzeBuildsRankedList(t *testing.T) {
	papers := &stubPapers{papers: []core.PaperInfo{paperStub("2501.00002"), paperStub("2501.00003"), paperStub("2501.00004")}}
	refs := &stubRefs{refs: map[string][]string{
		"2501.00002": {"2412.00001", "2412.00005"},
		"2501.00003": {"2412.00001"},
		"2501.00004": {"2412.00001", "2412.00005"},
	}}

	a := testAnalyzer(t, papers, refs)
	result := a.Analyze(context.Background(), 7, 5, 2, []string{"cs.AI"})

	if result.Error != "" {
		t.Fatalf("unexpected degraded result: %s", result.Error)
	}
	if len(result.Papers) != 2 {
		t.Fatalf("expected 2 ranked papers, got %+v", result.Papers)
	}
	if result.Papers[0].ArxivID != "2412.00001" || result.Papers[0].CitationCount != 3 {
		t.Errorf("expected 2412.00001 with 3 citations first, got %+v", result.Papers[0])
	}
	if result.Papers[1].ArxivID != "2412.00005" || result.Papers[1].CitationCount != 2 {
		t.Errorf("expected 2412.00005 with 2 citations second, got %+v", result.Papers[1])
	}
	if !result.GeneratedAt.Equal(storeNow) {
		t.Errorf("expected GeneratedAt %v, got %v", storeNow, result.GeneratedAt)
	}
}

func TestAnalyzeUsesFreshCache(t *testing.T) {
	papers := &stubPapers{papers: []core.PaperInfo{paperStub("2501.00002")}}
	refs := &stubRefs{refs: map[string][]string{"2501.00002": {"2412.00001"}}}

	a := testAnalyzer(t, papers, refs)
	a.Analyze(context.Background(), 7, 5, 1, nil)
	if refs.totalCalls() != 1 {
		t.Fatalf("expected 1 service call on a cold cache, got %d", refs.totalCalls())
	}

	a.Analyze(context.Background(), 7, 5, 1, nil)
	if refs.totalCalls() != 1 {
		t.Errorf("fresh cache must skip the service, got %d calls", refs.totalCalls())
	}
}

func TestAnalyzeRefetchesStaleCache(t *testing.T) {
	store := testStore(t)
	store.SaveReferences("2501.00002", []string{"2412.00001"}, storeNow.Add(-31*24*time.Hour))

	papers := &stubPapers{papers: []core.PaperInfo{paperStub("2501.00002")}}
	refs := &stubRefs{refs: map[string][]string{"2501.00002": {"2412.00009"}}}
	a := NewAnalyzer(store, papers, refs, WithAnalyzerClock(func() time.Time { return storeNow }))

	result := a.Analyze(context.Background(), 7, 5, 1, nil)
	if refs.totalCalls() != 1 {
		t.Fatalf("stale cache must refetch, got %d calls", refs.totalCalls())
	}
	if len(result.Papers) != 1 || result.Papers[0].ArxivID != "2412.00009" {
		t.Errorf("expected refetched reference list, got %+v", result.Papers)
	}

	if state, _ := store.ReferenceFreshness("2501.00002", DefaultMaxAge, storeNow); state != Fresh {
		t.Errorf("successful fetch should leave the cache fresh, got %v", state)
	}
}

func TestAnalyzeFailedFetchFallsBackToStaleRows(t *testing.T) {
	store := testStore(t)
	store.SaveReferences("2501.00002", []string{"2412.00001"}, storeNow.Add(-31*24*time.Hour))

	papers := &stubPapers{papers: []core.PaperInfo{paperStub("2501.00002")}}
	refs := &stubRefs{fail: map[string]bool{"2501.00002": true}}
	a := NewAnalyzer(store, papers, refs, WithAnalyzerClock(func() time.Time { return storeNow }))

	result := a.Analyze(context.Background(), 7, 5, 1, nil)
	if len(result.Papers) != 1 || result.Papers[0].ArxivID != "2412.00001" {
		t.Errorf("expected stale rows to back the result, got %+v", result.Papers)
	}

	// A failed fetch leaves the cache state unchanged.
	if state, _ := store.ReferenceFreshness("2501.00002", DefaultMaxAge, storeNow); state != Stale {
		t.Errorf("failed fetch must not refresh the cache, got %v", state)
	}
}

func TestAnalyzeAbsorbsServiceFailures(t *testing.T) {
	papers := &stubPapers{papers: []core.PaperInfo{paperStub("2501.00002"), paperStub("2501.00003")}}
	refs := &stubRefs{
		refs: map[string][]string{"2501.00002": {"2412.00001", "2412.00001"}},
		fail: map[string]bool{"2501.00003": true},
	}

	a := testAnalyzer(t, papers, refs)
	result := a.Analyze(context.Background(), 7, 5, 1, nil)

	if result.Error == "" {
		t.Error("expected a degraded-mode error description")
	}
	if len(result.Papers) != 1 || result.Papers[0].ArxivID != "2412.00001" {
		t.Errorf("surviving lookups should still produce a ranking, got %+v", result.Papers)
	}
	if result.Papers[0].CitationCount != 1 {
		t.Errorf("duplicate cited IDs from one paper must collapse, got %d", result.Papers[0].CitationCount)
	}
}

func TestAnalyzeNoPapers(t *testing.T) {
	a := testAnalyzer(t, &stubPapers{}, &stubRefs{})
	result := a.Analyze(context.Background(), 7, 5, 2, nil)
	if result.Error == "" || len(result.Papers) != 0 {
		t.Errorf("expected an empty degraded result, got %+v", result)
	}
}

func TestAnalyzeFromCacheTopThree(t *testing.T) {
	// Edges: A<-B, A<-C, A<-D, E<-B, E<-C, F<-B. With min_citations=2 only
	// A (3) and E (2) qualify; F (1) is cut.
	const (
		paperA = "2412.00001"
		paperE = "2412.00005"
		paperF = "2412.00006"
	)
	store := testStore(t)
	store.SaveReferences("2501.00002", []string{paperA, paperE, paperF}, storeNow) // B
	store.SaveReferences("2501.00003", []string{paperA, paperE}, storeNow)         // C
	store.SaveReferences("2501.00004", []string{paperA}, storeNow)                 // D

	a := NewAnalyzer(store, nil, nil, WithAnalyzerClock(func() time.Time { return storeNow }))
	result := a.AnalyzeFromCache(context.Background(), 3, 2)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.Papers) != 2 {
		t.Fatalf("expected exactly 2 papers, got %+v", result.Papers)
	}
	if result.Papers[0].ArxivID != paperA || result.Papers[0].CitationCount != 3 {
		t.Errorf("expected %s first with 3 citations, got %+v", paperA, result.Papers[0])
	}
	if result.Papers[1].ArxivID != paperE || result.Papers[1].CitationCount != 2 {
		t.Errorf("expected %s second with 2 citations, got %+v", paperE, result.Papers[1])
	}
}

func TestSelectTopTieBreaksOnArxivID(t *testing.T) {
	graph := core.NewCitationGraph()
	graph.AddEdge("2412.00009", "2501.00001")
	graph.AddEdge("2412.00009", "2501.00002")
	graph.AddEdge("2412.00001", "2501.00001")
	graph.AddEdge("2412.00001", "2501.00002")

	a := NewAnalyzer(nil, nil, nil)
	ranked := a.selectTop(context.Background(), graph, 5, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(ranked))
	}
	if ranked[0].ArxivID != "2412.00001" || ranked[1].ArxivID != "2412.00009" {
		t.Errorf("equal in-degrees must sort by arXiv ID ascending, got %+v", ranked)
	}
}

func TestEnrichmentFallsBackToPlaceholder(t *testing.T) {
	papers := &stubPapers{
		papers:  []core.PaperInfo{paperStub("2501.00002")},
		metaErr: errors.New("arxiv api down"),
	}
	refs := &stubRefs{refs: map[string][]string{"2501.00002": {"2412.00001"}}}

	a := testAnalyzer(t, papers, refs)
	result := a.Analyze(context.Background(), 7, 5, 1, nil)

	if len(result.Papers) != 1 {
		t.Fatalf("expected 1 paper, got %+v", result.Papers)
	}
	got := result.Papers[0]
	if got.ArxivID != "2412.00001" || got.URL == "" {
		t.Errorf("expected a placeholder with ID and URL, got %+v", got)
	}
}

func TestEnrichmentUsesFetchedMetadata(t *testing.T) {
	papers := &stubPapers{
		papers: []core.PaperInfo{paperStub("2501.00002")},
		meta: map[string]core.PaperInfo{
			"2412.00001": {ArxivID: "2412.00001", Title: "Cited Paper", URL: "https://arxiv.org/abs/2412.00001"},
		},
	}
	refs := &stubRefs{refs: map[string][]string{"2501.00002": {"2412.00001"}}}

	a := testAnalyzer(t, papers, refs)
	result := a.Analyze(context.Background(), 7, 5, 1, nil)

	if len(result.Papers) != 1 || result.Papers[0].Title != "Cited Paper" {
		t.Errorf("expected enriched metadata, got %+v", result.Papers)
	}
}
