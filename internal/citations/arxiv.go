package citations

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// arXiv identifiers look like 2501.12345 (4-digit year-month, 4-5 digit
// sequence, optional version suffix).
var arxivIDRegex = regexp.MustCompile(`(\d{4}\.\d{4,5})(?:v\d+)?`)

const (
	defaultArxivRSSURL = "https://rss.arxiv.org/rss/%s"
	defaultArxivAPIURL = "http://export.arxiv.org/api/query?id_list=%s&max_results=%d"
)

// ExtractArxivID pulls the arXiv identifier out of a URL or reference
// string. Returns "" when none is present.
func ExtractArxivID(s string) string {
	m := arxivIDRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// ArxivClient talks to the public arXiv RSS and Atom endpoints.
type ArxivClient struct {
	http    *http.Client
	rssURL  string
	apiURL  string
	timeout time.Duration
}

// ArxivOption configures an ArxivClient.
type ArxivOption func(*ArxivClient)

// WithArxivHTTPClient injects the HTTP client, for tests.
func WithArxivHTTPClient(c *http.Client) ArxivOption {
	return func(a *ArxivClient) { a.http = c }
}

// WithArxivEndpoints overrides the RSS and API URL templates, for tests.
func WithArxivEndpoints(rssURL, apiURL string) ArxivOption {
	return func(a *ArxivClient) {
		a.rssURL = rssURL
		a.apiURL = apiURL
	}
}

// NewArxivClient builds a client with the public endpoints and a 30s
// per-call timeout.
func NewArxivClient(opts ...ArxivOption) *ArxivClient {
	a := &ArxivClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		rssURL:  defaultArxivRSSURL,
		apiURL:  defaultArxivAPIURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecentPapers fetches the RSS listing for each category and returns papers
// published after the cutoff, deduplicated by arXiv ID. Failures on a single
// category are logged and skipped.
func (a *ArxivClient) RecentPapers(ctx context.Context, categories []string, cutoff time.Time) []core.PaperInfo {
	parser := gofeed.NewParser()
	parser.Client = a.http

	seen := make(map[string]bool)
	var papers []core.PaperInfo
	for _, category := range categories {
		feedCtx, cancel := context.WithTimeout(ctx, a.timeout)
		feed, err := parser.ParseURLWithContext(fmt.Sprintf(a.rssURL, category), feedCtx)
		cancel()
		if err != nil {
			logger.Warn("arxiv rss fetch failed", map[string]interface{}{
				"category": category,
				"error":    err.Error(),
			})
			continue
		}

		for _, item := range feed.Items {
			id := ExtractArxivID(item.Link)
			if id == "" && item.GUID != "" {
				id = ExtractArxivID(item.GUID)
			}
			if id == "" || seen[id] {
				continue
			}

			published := time.Time{}
			if item.PublishedParsed != nil {
				published = item.PublishedParsed.UTC()
			}
			if !published.IsZero() && published.Before(cutoff) {
				continue
			}

			seen[id] = true
			papers = append(papers, core.PaperInfo{
				ArxivID:   id,
				Title:     collapseWhitespace(item.Title),
				Summary:   collapseWhitespace(item.Description),
				URL:       item.Link,
				Published: published,
			})
		}
	}
	return papers
}

// Atom feed structures for the arXiv query API.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Published string       `xml:"published"`
	Summary   string       `xml:"summary"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// FetchMetadata queries the arXiv Atom API for full metadata on the given
// IDs. Papers missing from the response are simply absent from the result.
func (a *ArxivClient) FetchMetadata(ctx context.Context, ids []string) (map[string]core.PaperInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf(a.apiURL, strings.Join(ids, ","), len(ids))
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building arxiv metadata request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching arxiv metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv metadata API returned status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arxiv metadata response: %w", err)
	}

	papers := make(map[string]core.PaperInfo, len(feed.Entries))
	for _, entry := range feed.Entries {
		id := ExtractArxivID(entry.ID)
		if id == "" {
			continue
		}

		info := core.PaperInfo{
			ArxivID: id,
			Title:   collapseWhitespace(entry.Title),
			Summary: collapseWhitespace(entry.Summary),
			URL:     entry.ID,
		}
		for _, author := range entry.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				info.Authors = append(info.Authors, name)
			}
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			info.Published = t.UTC()
		}
		papers[id] = info
	}
	return papers, nil
}

// collapseWhitespace flattens the newlines arXiv inserts into titles and
// abstracts.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
