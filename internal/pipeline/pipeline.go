// Package pipeline orchestrates a briefing run: fan out to the source
// fetchers, merge and deduplicate, reuse cached embeddings, embed what is
// left, then cluster, categorize, and rank the result. Failed sources and a
// missing LLM reduce the output; they never abort the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"daybrief/internal/categorize"
	"daybrief/internal/clustering"
	"daybrief/internal/core"
	"daybrief/internal/logger"
	"daybrief/internal/rank"
)

// DefaultConcurrency bounds the source fetch fan-out.
const DefaultConcurrency = 8

// Per-bucket ranking defaults.
const (
	DefaultTopContinuing = 3
	DefaultTopNew        = 5
	DefaultTopDormant    = 2
)

// Fetcher pulls articles from one source. *fetch.Client is the production
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, src core.Source, days int) []core.Article
}

// Cache is the rolling article store. *cache.ArticleCache is the production
// implementation.
type Cache interface {
	LoadRecent(days int) map[string]core.Article
	Store(articles []core.Article)
	Evict()
}

// Embedder turns texts into vectors. *embed.Embedder is the production
// implementation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Ranker labels clusters and selects the top k of a listing. *rank.Ranker is
// the production implementation.
type Ranker interface {
	clustering.Labeler
	RankItems(ctx context.Context, itemsText, promptTemplate string, k, batchSize int) []int
}

// Config holds per-run tunables.
type Config struct {
	CorpusDays         int // cache window, default 3
	TodayDays          int // today window, default 1
	MinArticleAgeHours int // drop articles younger than this, 0 disables
	Clustering         clustering.Config
	RankTemplate       string
	TopContinuing      int
	TopNew             int
	TopDormant         int
}

func (c *Config) applyDefaults() {
	if c.CorpusDays <= 0 {
		c.CorpusDays = 3
	}
	if c.TodayDays <= 0 {
		c.TodayDays = categorize.DefaultTodayDays
	}
	if c.TopContinuing <= 0 {
		c.TopContinuing = DefaultTopContinuing
	}
	if c.TopNew <= 0 {
		c.TopNew = DefaultTopNew
	}
	if c.TopDormant <= 0 {
		c.TopDormant = DefaultTopDormant
	}
}

// Pipeline wires the briefing stages together.
type Pipeline struct {
	fetcher     Fetcher
	cache       Cache
	embedder    Embedder
	ranker      Ranker
	concurrency int
	clock       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency bounds the fetch fan-out.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// New builds a Pipeline. embedder and ranker may be nil; articles then stay
// unembedded (singleton clusters) and ranking degrades to positional order.
func New(fetcher Fetcher, articleCache Cache, embedder Embedder, ranker Ranker, opts ...Option) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("pipeline: fetcher is required")
	}
	if articleCache == nil {
		return nil, fmt.Errorf("pipeline: article cache is required")
	}

	p := &Pipeline{
		fetcher:     fetcher,
		cache:       articleCache,
		embedder:    embedder,
		ranker:      ranker,
		concurrency: DefaultConcurrency,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// BuildCorpus runs one briefing: fetch, merge, embed, cluster, categorize,
// rank. Partial upstream failures shrink the corpus rather than failing it.
func (p *Pipeline) BuildCorpus(ctx context.Context, sources []core.Source, cfg Config) core.Corpus {
	cfg.applyDefaults()
	now := p.clock()

	runID := uuid.NewString()
	logger.Info("briefing run started", map[string]interface{}{
		"run_id":  runID,
		"sources": len(sources),
	})

	fetched := p.fetchAll(ctx, sources, cfg.CorpusDays)
	merged := dedupe(fetched)

	if cfg.MinArticleAgeHours > 0 {
		merged = dropYoungerThan(merged, now.Add(-time.Duration(cfg.MinArticleAgeHours)*time.Hour))
	}

	// Union with the cache window; cached vectors are inherited so already
	// embedded articles skip the embedding call entirely.
	cached := p.cache.LoadRecent(cfg.CorpusDays)
	for url, article := range cached {
		if current, ok := merged[url]; ok {
			if !current.HasVector() && article.HasVector() {
				current.Vector = article.Vector
				merged[url] = current
			}
			continue
		}
		merged[url] = article
	}

	articles := p.embedMissing(ctx, flatten(merged))
	p.cache.Store(articles)
	p.cache.Evict()

	var labeler clustering.Labeler
	if p.ranker != nil {
		labeler = p.ranker
	}
	clusters := clustering.Cluster(ctx, articles, cfg.Clustering, labeler)

	categorizer := categorize.New(
		categorize.WithTodayDays(cfg.TodayDays),
		categorize.WithClock(p.clock),
	)
	corpus := categorizer.Categorize(clusters)

	corpus.Continuing = p.rankBucket(ctx, corpus.Continuing, cfg.TopContinuing, cfg.RankTemplate)
	corpus.New = p.rankBucket(ctx, corpus.New, cfg.TopNew, cfg.RankTemplate)
	corpus.Dormant = p.rankBucket(ctx, corpus.Dormant, cfg.TopDormant, cfg.RankTemplate)

	logger.Info("briefing run finished", map[string]interface{}{
		"run_id":     runID,
		"articles":   len(articles),
		"clusters":   len(clusters),
		"continuing": len(corpus.Continuing),
		"new":        len(corpus.New),
		"dormant":    len(corpus.Dormant),
		"singles":    len(corpus.Singles),
	})
	return corpus
}

// fetchAll fans out over the sources with bounded concurrency. Each fetcher
// absorbs its own failures, so the only job here is scheduling.
func (p *Pipeline) fetchAll(ctx context.Context, sources []core.Source, days int) []core.Article {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	results := make([][]core.Article, len(sources))
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = p.fetcher.Fetch(gctx, src, days)
			return nil
		})
	}
	g.Wait()

	var all []core.Article
	for _, r := range results {
		all = append(all, r...)
	}
	logger.Debug("sources fetched", map[string]interface{}{
		"sources":  len(sources),
		"articles": len(all),
	})
	return all
}

// dedupe collapses articles by URL. The first occurrence wins unless it has
// an empty summary and a later one does not.
func dedupe(articles []core.Article) map[string]core.Article {
	merged := make(map[string]core.Article, len(articles))
	for _, a := range articles {
		key := a.Key()
		if key == "" {
			continue
		}
		existing, ok := merged[key]
		if !ok {
			merged[key] = a
			continue
		}
		if existing.Summary == "" && a.Summary != "" {
			merged[key] = a
		}
	}
	return merged
}

func dropYoungerThan(articles map[string]core.Article, floor time.Time) map[string]core.Article {
	kept := make(map[string]core.Article, len(articles))
	for url, a := range articles {
		if a.PublishedAt.After(floor) && !a.DateGuessed {
			continue
		}
		kept[url] = a
	}
	return kept
}

// embedMissing fills in vectors for articles that lack one. An embedding
// failure leaves those articles unembedded; they surface as singletons.
func (p *Pipeline) embedMissing(ctx context.Context, articles []core.Article) []core.Article {
	var pending []int
	var texts []string
	for i, a := range articles {
		if a.HasVector() {
			continue
		}
		pending = append(pending, i)
		texts = append(texts, embeddingText(a))
	}
	if len(pending) == 0 || p.embedder == nil {
		return articles
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Warn("embedding failed, articles stay unclustered", map[string]interface{}{
			"articles": len(pending),
			"error":    err.Error(),
		})
		return articles
	}
	for i, idx := range pending {
		if i < len(vectors) {
			articles[idx].Vector = vectors[i]
		}
	}
	return articles
}

func embeddingText(a core.Article) string {
	if a.Summary == "" {
		return a.Title
	}
	return a.Title + "\n" + a.Summary
}

// rankBucket keeps the top k clusters of one status bucket in the ranker's
// order. With k or fewer clusters the bucket passes through unchanged; with
// no ranker it truncates positionally.
func (p *Pipeline) rankBucket(ctx context.Context, clusters []core.Cluster, k int, template string) []core.Cluster {
	if len(clusters) <= k {
		return clusters
	}
	if p.ranker == nil {
		return clusters[:k]
	}

	var b strings.Builder
	for i, c := range clusters {
		fmt.Fprintf(&b, "[%d] %s (%d articles, %d today)\n", i, c.Label, c.TotalCount, c.TodayCount)
	}

	picks := p.ranker.RankItems(ctx, b.String(), template, k, rank.DefaultBatchSize)
	ranked := make([]core.Cluster, 0, len(picks))
	for _, idx := range picks {
		if idx >= 0 && idx < len(clusters) {
			ranked = append(ranked, clusters[idx])
		}
	}
	if len(ranked) == 0 {
		return clusters[:k]
	}
	return ranked
}

func flatten(articles map[string]core.Article) []core.Article {
	out := make([]core.Article, 0, len(articles))
	for _, a := range articles {
		out = append(out, a)
	}
	return out
}
