package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// tldrBaseURL is the pattern used when a tldr source has no explicit URL.
const tldrBaseURL = "https://tldr.tech/tech/%s"

// hnDailyBaseURL is the pattern used when an hn-daily source has no explicit URL.
const hnDailyBaseURL = "https://www.daemonology.net/hn-daily/%s.html"

// fetchTLDR scrapes a TLDR-style newsletter page. Each article block yields
// one Article; sponsored blocks are skipped and a malformed block never stops
// the others.
func (c *Client) fetchTLDR(ctx context.Context, src core.Source) []core.Article {
	pageURL := src.URL
	if pageURL == "" {
		pageURL = fmt.Sprintf(tldrBaseURL, c.clock().Format("2006-01-02"))
	}

	doc := c.fetchDocument(ctx, src.Name, pageURL)
	if doc == nil {
		return nil
	}

	now := c.clock()
	var articles []core.Article
	doc.Find("article").Each(func(_ int, block *goquery.Selection) {
		title := SanitizeTitle(block.Find("h3").First().Text())
		if title == "" || strings.Contains(title, "(Sponsor)") {
			return
		}

		href, ok := block.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		summary := strings.TrimSpace(block.Find("div").First().Text())
		summary = readTimeRegex.ReplaceAllString(summary, "")
		summary = strings.Join(strings.Fields(summary), " ")

		articles = append(articles, core.Article{
			URL:         strings.TrimSpace(href),
			Title:       title,
			Summary:     summary,
			Source:      src.Name,
			PublishedAt: now,
		})
	})

	logger.Debug("tldr page scraped", map[string]interface{}{"source": src.Name, "articles": len(articles)})
	return articles
}

// fetchHNDaily scrapes an HN daily digest page. Every anchor whose visible
// text is a story title becomes an Article with an empty summary.
func (c *Client) fetchHNDaily(ctx context.Context, src core.Source) []core.Article {
	pageURL := src.URL
	if pageURL == "" {
		// The daily page for a date is published the following morning.
		pageURL = fmt.Sprintf(hnDailyBaseURL, c.clock().AddDate(0, 0, -1).Format("2006-01-02"))
	}

	doc := c.fetchDocument(ctx, src.Name, pageURL)
	if doc == nil {
		return nil
	}

	now := c.clock()
	seen := make(map[string]bool)
	var articles []core.Article
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		text := strings.TrimSpace(anchor.Text())
		lower := strings.ToLower(text)
		if text == "" || lower == "comments" || strings.Contains(lower, "hacker news") {
			return
		}

		href, _ := anchor.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !strings.HasPrefix(href, "http") || seen[href] {
			return
		}
		seen[href] = true

		articles = append(articles, core.Article{
			URL:         href,
			Title:       SanitizeTitle(text),
			Source:      src.Name,
			PublishedAt: now,
		})
	})

	logger.Debug("hn-daily page scraped", map[string]interface{}{"source": src.Name, "articles": len(articles)})
	return articles
}

// fetchScrape handles generic scraped pages: headline anchors inside the
// page's main content area, published "now" with no summary.
func (c *Client) fetchScrape(ctx context.Context, src core.Source) []core.Article {
	doc := c.fetchDocument(ctx, src.Name, src.URL)
	if doc == nil {
		return nil
	}

	now := c.clock()
	seen := make(map[string]bool)
	var articles []core.Article
	doc.Find("article a[href], main a[href], h2 a[href], h3 a[href]").Each(func(_ int, anchor *goquery.Selection) {
		title := SanitizeTitle(anchor.Text())
		if len(title) < 15 {
			// Nav links and "read more" stubs.
			return
		}

		href, _ := anchor.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !strings.HasPrefix(href, "http") || seen[href] {
			return
		}
		seen[href] = true

		articles = append(articles, core.Article{
			URL:         href,
			Title:       title,
			Source:      src.Name,
			PublishedAt: now,
		})
	})

	logger.Debug("page scraped", map[string]interface{}{"source": src.Name, "articles": len(articles)})
	return articles
}

// fetchDocument GETs a page and parses it with goquery, returning nil on any
// failure.
func (c *Client) fetchDocument(ctx context.Context, sourceName, pageURL string) *goquery.Document {
	ctx, cancel := context.WithTimeout(ctx, c.http.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		logger.Warn("bad scrape URL", map[string]interface{}{"source": sourceName, "url": pageURL, "error": err.Error()})
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("scrape fetch failed", map[string]interface{}{"source": sourceName, "url": pageURL, "error": err.Error()})
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("scrape returned non-200", map[string]interface{}{"source": sourceName, "url": pageURL, "status": resp.StatusCode})
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		logger.Warn("scrape parse failed", map[string]interface{}{"source": sourceName, "url": pageURL, "error": err.Error()})
		return nil
	}
	return doc
}
