package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"daybrief/internal/cache"
	"daybrief/internal/core"
)

var (
	day1 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// stubFetcher serves canned articles per source name and tracks its peak
// concurrency.
type stubFetcher struct {
	mu       sync.Mutex
	articles map[string][]core.Article
	active   int
	peak     int
}

func (f *stubFetcher) Fetch(ctx context.Context, src core.Source, days int) []core.Article {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return f.articles[src.Name]
}

// vectorEmbedder maps known text prefixes to fixed vectors and counts calls.
type vectorEmbedder struct {
	vectors map[string][]float64
	calls   int
	err     error
}

func (e *vectorEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		for prefix, v := range e.vectors {
			if strings.HasPrefix(text, prefix) {
				out[i] = v
				break
			}
		}
		if out[i] == nil {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

type stubRanker struct {
	picks   []int
	listing string
}

func (r *stubRanker) LabelCluster(ctx context.Context, titles []string) (string, error) {
	return "", errors.New("no labels in tests")
}

func (r *stubRanker) RankItems(ctx context.Context, itemsText, template string, k, batchSize int) []int {
	r.listing = itemsText
	if len(r.picks) > k {
		return r.picks[:k]
	}
	return r.picks
}

func testArticle(url, title, summary string, at time.Time) core.Article {
	return core.Article{
		URL:         url,
		Title:       title,
		Summary:     summary,
		Source:      "test",
		PublishedAt: at,
	}
}

func newTestPipeline(t *testing.T, f Fetcher, c Cache, e Embedder, r Ranker, now time.Time) *Pipeline {
	t.Helper()
	p, err := New(f, c, e, r, WithClock(clockAt(now)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestBuildCorpusReusesCachedEmbeddings(t *testing.T) {
	dir := t.TempDir()

	// Seed yesterday's partition with an embedded article.
	seeded := testArticle("https://ex.com/a", "Article A", "Summary", day1)
	seeded.Vector = []float64{1, 0}
	cache.New(dir, cache.WithClock(clockAt(day1))).Store([]core.Article{seeded})

	// Today's fetch returns the same URL with identical content.
	fetched := testArticle("https://ex.com/a", "Article A", "Summary", day2)
	fetcher := &stubFetcher{articles: map[string][]core.Article{"feed": {fetched}}}
	embedder := &vectorEmbedder{}

	p := newTestPipeline(t, fetcher, cache.New(dir, cache.WithClock(clockAt(day2))), embedder, nil, day2)
	corpus := p.BuildCorpus(context.Background(), []core.Source{{Name: "feed", Type: core.SourceRSS, URL: "http://x"}}, Config{})

	if embedder.calls != 0 {
		t.Errorf("cached vector must skip embedding, got %d calls", embedder.calls)
	}
	if len(corpus.Singles) != 1 {
		t.Fatalf("expected exactly one single, got %+v", corpus)
	}
	got := corpus.Singles[0]
	if got.TotalCount != 1 || got.TodayCount != 1 || got.Status != core.StatusSingle {
		t.Errorf("expected total=1 today=1 single, got %+v", got)
	}
}

func TestBuildCorpusContinuingStory(t *testing.T) {
	dir := t.TempDir()

	// Three embedded articles about one topic cached yesterday, safely
	// outside the today window.
	var seed []core.Article
	for i := 0; i < 3; i++ {
		a := testArticle(fmt.Sprintf("https://ex.com/t%d", i), "Topic story", "About T", day1.Add(-2*time.Hour))
		a.Vector = []float64{1, 0}
		seed = append(seed, a)
	}
	cache.New(dir, cache.WithClock(clockAt(day1))).Store(seed)

	// Today: two more on the topic, one unrelated.
	fetcher := &stubFetcher{articles: map[string][]core.Article{"feed": {
		testArticle("https://ex.com/t3", "Topic update", "About T", day2),
		testArticle("https://ex.com/t4", "Topic followup", "About T", day2),
		testArticle("https://ex.com/other", "Unrelated", "Else", day2),
	}}}
	embedder := &vectorEmbedder{vectors: map[string][]float64{
		"Topic":     {1, 0},
		"Unrelated": {0, 1},
	}}

	p := newTestPipeline(t, fetcher, cache.New(dir, cache.WithClock(clockAt(day2))), embedder, nil, day2)
	corpus := p.BuildCorpus(context.Background(), []core.Source{{Name: "feed", Type: core.SourceRSS, URL: "http://x"}}, Config{})

	if len(corpus.Continuing) != 1 {
		t.Fatalf("expected one continuing cluster, got %+v", corpus)
	}
	story := corpus.Continuing[0]
	if story.TotalCount != 5 || story.TodayCount != 2 {
		t.Errorf("expected total=5 today=2, got total=%d today=%d", story.TotalCount, story.TodayCount)
	}
	if len(corpus.Singles) != 1 {
		t.Errorf("expected the unrelated article as a single, got %+v", corpus.Singles)
	}

	// Newly embedded articles are persisted for tomorrow's run.
	reloaded := cache.New(dir, cache.WithClock(clockAt(day2))).LoadRecent(1)
	if a, ok := reloaded["https://ex.com/t3"]; !ok || !a.HasVector() {
		t.Error("expected today's embedded article in the cache")
	}
}

func TestBuildCorpusDeduplicatesByURL(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]core.Article{
		"feed-a": {testArticle("https://ex.com/a", "A", "", day2)},
		"feed-b": {
			testArticle("https://ex.com/a", "A", "Real summary", day2),
			testArticle("https://ex.com/b", "B", "Other", day2),
		},
	}}

	p := newTestPipeline(t, fetcher, cache.New(t.TempDir(), cache.WithClock(clockAt(day2))), nil, nil, day2)
	sources := []core.Source{
		{Name: "feed-a", Type: core.SourceRSS, URL: "http://a"},
		{Name: "feed-b", Type: core.SourceRSS, URL: "http://b"},
	}
	corpus := p.BuildCorpus(context.Background(), sources, Config{})

	seen := make(map[string]int)
	var summary string
	for _, c := range corpus.Singles {
		for _, a := range c.Articles {
			seen[a.URL]++
			if a.URL == "https://ex.com/a" {
				summary = a.Summary
			}
		}
	}
	if len(seen) != 2 || seen["https://ex.com/a"] != 1 {
		t.Errorf("expected 2 unique articles, got %v", seen)
	}
	if summary != "Real summary" {
		t.Errorf("duplicate with a summary should win over an empty one, got %q", summary)
	}
}

func TestBuildCorpusMinAgeFloor(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]core.Article{"feed": {
		testArticle("https://ex.com/fresh", "Too Fresh", "s", day2.Add(-30*time.Minute)),
		testArticle("https://ex.com/ok", "Old Enough", "s", day2.Add(-3*time.Hour)),
	}}}

	p := newTestPipeline(t, fetcher, cache.New(t.TempDir(), cache.WithClock(clockAt(day2))), nil, nil, day2)
	corpus := p.BuildCorpus(
		context.Background(),
		[]core.Source{{Name: "feed", Type: core.SourceRSS, URL: "http://x"}},
		Config{MinArticleAgeHours: 2},
	)

	if len(corpus.Singles) != 1 || corpus.Singles[0].Articles[0].URL != "https://ex.com/ok" {
		t.Errorf("expected the too-fresh article dropped, got %+v", corpus.Singles)
	}
}

func TestBuildCorpusEmbeddingFailureLeavesSingletons(t *testing.T) {
	fetcher := &stubFetcher{articles: map[string][]core.Article{"feed": {
		testArticle("https://ex.com/a", "A", "s", day2),
		testArticle("https://ex.com/b", "B", "s", day2),
	}}}
	embedder := &vectorEmbedder{err: errors.New("api down")}

	p := newTestPipeline(t, fetcher, cache.New(t.TempDir(), cache.WithClock(clockAt(day2))), embedder, nil, day2)
	corpus := p.BuildCorpus(context.Background(), []core.Source{{Name: "feed", Type: core.SourceRSS, URL: "http://x"}}, Config{})

	if len(corpus.Singles) != 2 {
		t.Errorf("unembedded articles should surface as singles, got %+v", corpus)
	}
}

func TestBuildCorpusBoundsFanOut(t *testing.T) {
	articles := make(map[string][]core.Article)
	var sources []core.Source
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("feed-%d", i)
		articles[name] = nil
		sources = append(sources, core.Source{Name: name, Type: core.SourceRSS, URL: "http://x"})
	}
	fetcher := &stubFetcher{articles: articles}

	p, err := New(fetcher, cache.New(t.TempDir(), cache.WithClock(clockAt(day2))), nil, nil,
		WithClock(clockAt(day2)), WithConcurrency(4))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.BuildCorpus(context.Background(), sources, Config{})

	if fetcher.peak > 4 {
		t.Errorf("fan-out exceeded the concurrency bound: peak %d", fetcher.peak)
	}
}

func TestRankBucketOrdersAndTruncates(t *testing.T) {
	ranker := &stubRanker{picks: []int{3, 0, 5}}
	p := newTestPipeline(t, &stubFetcher{}, cache.New(t.TempDir()), nil, ranker, day2)

	var clusters []core.Cluster
	for i := 0; i < 6; i++ {
		clusters = append(clusters, core.Cluster{ID: fmt.Sprintf("cluster_%d", i), Label: fmt.Sprintf("L%d", i), TotalCount: 2})
	}

	ranked := p.rankBucket(context.Background(), clusters, 3, "pick")
	if len(ranked) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(ranked))
	}
	want := []string{"cluster_3", "cluster_0", "cluster_5"}
	for i, c := range ranked {
		if c.ID != want[i] {
			t.Errorf("expected order %v, got %s at %d", want, c.ID, i)
		}
	}
	if !strings.Contains(ranker.listing, "[3] L3") {
		t.Errorf("listing should number clusters, got:\n%s", ranker.listing)
	}

	// At or under k the bucket passes through without ranking.
	ranker.listing = ""
	small := clusters[:3]
	if got := p.rankBucket(context.Background(), small, 3, "pick"); len(got) != 3 || ranker.listing != "" {
		t.Errorf("small bucket must pass through unranked, got %d clusters, listing %q", len(got), ranker.listing)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	if _, err := New(nil, cache.New(t.TempDir()), nil, nil); err == nil {
		t.Error("expected error without a fetcher")
	}
	if _, err := New(&stubFetcher{}, nil, nil, nil); err == nil {
		t.Error("expected error without a cache")
	}
}
