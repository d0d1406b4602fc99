// Package fetch pulls articles from configured sources (RSS/Atom feeds,
// TLDR-style pages, HN daily digests) and normalizes them into core.Article
// records. Fetchers never propagate errors upward: any failure is logged and
// yields an empty result, so one dead upstream cannot sink a briefing run.
package fetch

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 10 * time.Second

const userAgent = "daybrief/1.0"

// readTimeRegex matches the "(N minute read)" prefix TLDR puts on summaries.
var readTimeRegex = regexp.MustCompile(`^\(\d+ minute read\)\s*`)

// Fetcher is the capability the ingest pipeline fans out over.
type Fetcher interface {
	Fetch(ctx context.Context, src core.Source, days int) []core.Article
}

// Client fetches articles from all supported source types.
type Client struct {
	http  *http.Client
	clock func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// NewClient creates a fetch client with the default timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:  &http.Client{Timeout: DefaultTimeout},
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Timeout == 0 {
		c.http.Timeout = DefaultTimeout
	}
	return c
}

// Fetch dispatches to the fetcher for the source's type. Unknown types log a
// warning and return nothing.
func (c *Client) Fetch(ctx context.Context, src core.Source, days int) []core.Article {
	switch src.Type {
	case core.SourceRSS:
		return c.fetchRSS(ctx, src, days)
	case core.SourceTLDR:
		return c.fetchTLDR(ctx, src)
	case core.SourceHNDaily:
		return c.fetchHNDaily(ctx, src)
	case core.SourceScrape:
		return c.fetchScrape(ctx, src)
	default:
		logger.Warn("unknown source type", map[string]interface{}{"source": src.Name, "type": string(src.Type)})
		return nil
	}
}

// fetchRSS parses an RSS/Atom feed and keeps entries published (or updated)
// within the last `days` days. Entries with an empty summary are dropped.
func (c *Client) fetchRSS(ctx context.Context, src core.Source, days int) []core.Article {
	ctx, cancel := context.WithTimeout(ctx, c.http.Timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = c.http
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		logger.Warn("feed fetch failed", map[string]interface{}{"source": src.Name, "url": src.URL, "error": err.Error()})
		return nil
	}

	now := c.clock()
	cutoff := now.AddDate(0, 0, -days)
	feedKeywords := normalizeKeywords(feed.Categories)

	var articles []core.Article
	for _, item := range feed.Items {
		published, guessed := itemTime(item, now)
		if published.Before(cutoff) {
			continue
		}

		summary := StripHTML(item.Description)
		if summary == "" && item.Content != "" {
			summary = StripHTML(item.Content)
		}
		if summary == "" {
			continue
		}

		keywords := append([]string(nil), feedKeywords...)
		keywords = append(keywords, normalizeKeywords(item.Categories)...)

		articles = append(articles, core.Article{
			URL:         strings.TrimSpace(item.Link),
			Title:       SanitizeTitle(item.Title),
			Summary:     summary,
			Source:      src.Name,
			PublishedAt: published,
			DateGuessed: guessed,
			Keywords:    dedupeKeywords(keywords),
		})
	}

	logger.Debug("feed fetched", map[string]interface{}{"source": src.Name, "articles": len(articles)})
	return articles
}

// itemTime resolves an item's timestamp, preferring the publication date,
// falling back to the update date, and finally to "now" with a flag.
func itemTime(item *gofeed.Item, now time.Time) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC(), false
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC(), false
	}
	return now, true
}

// StripHTML removes tags and collapses whitespace in a fragment of HTML.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	text := unescapeEntities(b.String())
	return strings.Join(strings.Fields(text), " ")
}

// SanitizeTitle strips HTML and removes stray angle brackets from a title.
func SanitizeTitle(s string) string {
	title := StripHTML(s)
	title = strings.ReplaceAll(title, "<", "")
	title = strings.ReplaceAll(title, ">", "")
	return strings.TrimSpace(title)
}

// unescapeEntities decodes the handful of entities common in feed summaries.
func unescapeEntities(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	)
	return replacer.Replace(s)
}

func normalizeKeywords(raw []string) []string {
	var keywords []string
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	var out []string
	for _, k := range keywords {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
