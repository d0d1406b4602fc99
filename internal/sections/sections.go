// Package sections provides the typed briefing sections: News, TechNews, and
// Research. Each section is a thin composition over the ingest pipeline that
// picks its sources, clustering policy, and ranking prompt; Research can
// additionally blend in the citation analyzer's most-cited papers.
package sections

import (
	"context"
	"sort"
	"strings"

	"daybrief/internal/citations"
	"daybrief/internal/clustering"
	"daybrief/internal/config"
	"daybrief/internal/core"
	"daybrief/internal/pipeline"
)

// Ranking prompt templates per section.
const (
	newsRankTemplate = `You are picking stories for a personal morning briefing.
Prefer stories with broad impact and concrete developments over speculation.
Respond with a JSON array of the item numbers you pick, best first.

%s`

	techRankTemplate = `You are picking items for the technology section of a briefing.
Prefer shipped software, engineering writeups, and tooling over funding news.
Respond with a JSON array of the item numbers you pick, best first.

%s`

	researchRankTemplate = `You are picking research papers for a briefing.
Prefer novel results and strong empirical work over incremental surveys.
Respond with a JSON array of the item numbers you pick, best first.

%s`
)

// CorpusBuilder runs the ingest pipeline. *pipeline.Pipeline is the
// production implementation.
type CorpusBuilder interface {
	BuildCorpus(ctx context.Context, sources []core.Source, cfg pipeline.Config) core.Corpus
}

// CitationAnalyzer produces the most-cited papers list. *citations.Analyzer
// is the production implementation.
type CitationAnalyzer interface {
	Analyze(ctx context.Context, days, topN, minCitations int, categories []string) core.CitationResult
}

// Briefing exposes the three sections over one pipeline.
type Briefing struct {
	builder  CorpusBuilder
	analyzer CitationAnalyzer
	cfg      *config.Config
}

// New composes a Briefing. analyzer may be nil; the Research section then
// skips citation analysis.
func New(builder CorpusBuilder, analyzer CitationAnalyzer, cfg *config.Config) *Briefing {
	return &Briefing{builder: builder, analyzer: analyzer, cfg: cfg}
}

// ResearchSection is the Research section's output: the clustered corpus
// plus the citation analysis it may have been blended with.
type ResearchSection struct {
	Corpus    core.Corpus
	Citations core.CitationResult
}

// News builds the general news section from the configured RSS and scrape
// sources, excluding research feeds.
func (b *Briefing) News(ctx context.Context) core.Corpus {
	var sources []core.Source
	for _, src := range b.configuredSources(config.DefaultNewsSources()) {
		if src.Type == core.SourceTLDR || src.Type == core.SourceHNDaily || isResearchSource(src) {
			continue
		}
		sources = append(sources, src)
	}
	return b.capSingles(b.builder.BuildCorpus(ctx, sources, b.pipelineConfig(newsRankTemplate)))
}

// TechNews builds the technology section from the digest-style sources.
func (b *Briefing) TechNews(ctx context.Context) core.Corpus {
	var sources []core.Source
	for _, src := range b.configuredSources(config.DefaultNewsSources()) {
		if src.Type == core.SourceTLDR || src.Type == core.SourceHNDaily {
			sources = append(sources, src)
		}
	}
	return b.capSingles(b.builder.BuildCorpus(ctx, sources, b.pipelineConfig(techRankTemplate)))
}

// Research builds the research section from arXiv feeds. With a hybrid
// ranking enabled and an analyzer wired, the citation analysis runs over the
// configured categories and its top papers are promoted to the front of the
// singles list.
func (b *Briefing) Research(ctx context.Context) ResearchSection {
	var sources []core.Source
	for _, src := range b.configuredSources(config.DefaultResearchSources()) {
		if isResearchSource(src) {
			sources = append(sources, src)
		}
	}

	cfg := b.pipelineConfig(researchRankTemplate)
	cfg.TopNew = b.cfg.Research.MaxResearchPapers
	section := ResearchSection{
		Corpus: b.builder.BuildCorpus(ctx, sources, cfg),
	}

	if b.analyzer == nil {
		return section
	}
	section.Citations = b.analyzer.Analyze(
		ctx,
		b.cfg.Clustering.CorpusDays,
		b.cfg.Research.MaxResearchPapers,
		b.cfg.Citations.MinCitations,
		b.cfg.Research.ResearchCategories,
	)
	if b.cfg.Content.HybridResearchRanking {
		section.Corpus.Singles = promoteCited(section.Corpus.Singles, section.Citations.Papers)
	}
	section.Corpus = b.capSingles(section.Corpus)
	return section
}

// capSingles bounds the unranked singles list to the per-section article
// limit. The status buckets are already capped by their top-k quotas. Applied
// after hybrid promotion so cited papers survive the cut.
func (b *Briefing) capSingles(corpus core.Corpus) core.Corpus {
	if limit := b.cfg.Content.MaxArticlesPerSection; limit > 0 && len(corpus.Singles) > limit {
		corpus.Singles = corpus.Singles[:limit]
	}
	return corpus
}

// configuredSources returns the config's source list, or the fallback when
// none are configured.
func (b *Briefing) configuredSources(fallback []core.Source) []core.Source {
	if sources := b.cfg.CoreSources(); len(sources) > 0 {
		return sources
	}
	return fallback
}

func (b *Briefing) pipelineConfig(template string) pipeline.Config {
	return pipeline.Config{
		CorpusDays:         b.cfg.Clustering.CorpusDays,
		TodayDays:          b.cfg.Clustering.TodayDays,
		MinArticleAgeHours: b.cfg.Content.MinArticleAgeHours,
		Clustering:         b.clusteringConfig(),
		RankTemplate:       template,
	}
}

func (b *Briefing) clusteringConfig() clustering.Config {
	return clustering.Config{
		Algorithm: b.cfg.Clustering.Algorithm,
		Threshold: b.cfg.Clustering.Threshold,
		EpsStep:   b.cfg.Clustering.EpsStep,
	}
}

// isResearchSource reports whether a source is an arXiv feed.
func isResearchSource(src core.Source) bool {
	return strings.Contains(src.URL, "arxiv.org")
}

// promoteCited reorders singleton clusters so papers in the citation top-N
// come first, in citation order. Everything else keeps its relative order.
func promoteCited(singles []core.Cluster, papers []core.RankedPaper) []core.Cluster {
	if len(papers) == 0 || len(singles) == 0 {
		return singles
	}

	rankOf := make(map[string]int, len(papers))
	for i, p := range papers {
		rankOf[p.ArxivID] = i
	}

	position := func(c core.Cluster) (int, bool) {
		for _, a := range c.Articles {
			if id := citations.ExtractArxivID(a.URL); id != "" {
				if r, ok := rankOf[id]; ok {
					return r, true
				}
			}
		}
		return 0, false
	}

	var cited, rest []core.Cluster
	ranks := make(map[string]int)
	for _, c := range singles {
		if r, ok := position(c); ok {
			ranks[c.ID] = r
			cited = append(cited, c)
			continue
		}
		rest = append(rest, c)
	}
	sort.SliceStable(cited, func(i, j int) bool {
		return ranks[cited[i].ID] < ranks[cited[j].ID]
	})
	return append(cited, rest...)
}
