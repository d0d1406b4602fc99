// Package cache implements the rolling, date-partitioned article store. One
// JSONL file per day holds every article that was embedded that day; reads
// union the last N partitions with later dates winning on duplicate URLs.
//
// Every operation is best-effort: read and write failures are logged and
// treated as cache misses. The ingest pipeline stays correct (if slower) with
// a cache that always returns empty.
package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// DefaultRetentionDays is how many daily partitions Evict keeps.
const DefaultRetentionDays = 7

const partitionPrefix = "embeddings_"

// ArticleCache is a file-backed rolling store of embedded articles.
type ArticleCache struct {
	root      string
	retention int
	clock     func() time.Time
}

// Option configures an ArticleCache.
type Option func(*ArticleCache)

// WithRetention overrides the eviction horizon in days.
func WithRetention(days int) Option {
	return func(c *ArticleCache) { c.retention = days }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *ArticleCache) { c.clock = clock }
}

// New creates a cache rooted at dir. The articles subdirectory is created
// lazily on first write.
func New(dir string, opts ...Option) *ArticleCache {
	c := &ArticleCache{
		root:      filepath.Join(dir, "articles"),
		retention: DefaultRetentionDays,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadRecent returns all cached articles from the last `days` daily
// partitions, keyed by URL. When the same URL appears on several days, the
// most recent day wins; within a day, the last written line wins.
func (c *ArticleCache) LoadRecent(days int) map[string]core.Article {
	articles := make(map[string]core.Article)
	now := c.clock()

	// Oldest first so newer partitions overwrite older entries.
	for offset := days - 1; offset >= 0; offset-- {
		date := now.AddDate(0, 0, -offset)
		c.loadPartition(c.partitionPath(date), articles)
	}
	return articles
}

// loadPartition reads one JSONL partition into dst, skipping bad lines.
func (c *ArticleCache) loadPartition(path string, dst map[string]core.Article) {
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cache partition unreadable", map[string]interface{}{"path": path, "error": err.Error()})
		}
		return
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	badLines := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var article core.Article
		if err := json.Unmarshal(line, &article); err != nil {
			badLines++
			continue
		}
		if key := article.Key(); key != "" {
			articleCopy := article
			dst[key] = articleCopy
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("cache partition scan failed", map[string]interface{}{"path": path, "error": err.Error()})
	}
	if badLines > 0 {
		logger.Warn("skipped corrupt cache lines", map[string]interface{}{"path": path, "count": badLines})
	}
}

// Store appends all articles that carry a vector to today's partition.
// Articles without vectors are skipped: caching them would only force a
// re-embed on the next read.
func (c *ArticleCache) Store(articles []core.Article) {
	var embeddable []core.Article
	for _, a := range articles {
		if len(a.Vector) > 0 && a.HasVector() {
			embeddable = append(embeddable, a)
		}
	}
	if len(embeddable) == 0 {
		return
	}

	if err := os.MkdirAll(c.root, 0755); err != nil {
		logger.Warn("cache dir creation failed", map[string]interface{}{"dir": c.root, "error": err.Error()})
		return
	}

	path := c.partitionPath(c.clock())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Warn("cache partition open failed", map[string]interface{}{"path": path, "error": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	writer := bufio.NewWriter(file)
	written := 0
	for _, article := range embeddable {
		line, err := json.Marshal(article)
		if err != nil {
			continue
		}
		if _, err := writer.Write(line); err != nil {
			logger.Warn("cache write failed", map[string]interface{}{"path": path, "error": err.Error()})
			break
		}
		if err := writer.WriteByte('\n'); err != nil {
			break
		}
		written++
	}
	if err := writer.Flush(); err != nil {
		logger.Warn("cache flush failed", map[string]interface{}{"path": path, "error": err.Error()})
		return
	}
	logger.Debug("cached articles", map[string]interface{}{"path": path, "count": written})
}

// Evict removes partitions older than the retention horizon.
func (c *ArticleCache) Evict() {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return
	}

	cutoff := c.clock().AddDate(0, 0, -c.retention)
	for _, entry := range entries {
		date, ok := partitionDate(entry.Name())
		if !ok {
			continue
		}
		if date.Before(cutoff.Truncate(24 * time.Hour)) {
			path := filepath.Join(c.root, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("cache eviction failed", map[string]interface{}{"path": path, "error": err.Error()})
			} else {
				logger.Debug("evicted cache partition", map[string]interface{}{"path": path})
			}
		}
	}
}

func (c *ArticleCache) partitionPath(date time.Time) string {
	return filepath.Join(c.root, fmt.Sprintf("%s%s.jsonl", partitionPrefix, date.Format("2006-01-02")))
}

// partitionDate parses a partition filename back into its date.
func partitionDate(name string) (time.Time, bool) {
	if len(name) != len(partitionPrefix)+len("2006-01-02")+len(".jsonl") {
		return time.Time{}, false
	}
	if name[:len(partitionPrefix)] != partitionPrefix {
		return time.Time{}, false
	}
	dateStr := name[len(partitionPrefix) : len(name)-len(".jsonl")]
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
