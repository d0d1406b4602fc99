// Package categorize assigns clusters a temporal status by splitting their
// articles into a "today" window and everything older. Multi-article clusters
// become new, continuing, or dormant stories; singletons from today become
// singles; stale singletons are dropped.
package categorize

import (
	"sort"
	"time"

	"daybrief/internal/core"
)

// DefaultTodayDays is the width of the "today" window in days.
const DefaultTodayDays = 1

// Categorizer classifies clusters against a today cutoff.
type Categorizer struct {
	todayDays int
	clock     func() time.Time
}

// Option configures a Categorizer.
type Option func(*Categorizer)

// WithTodayDays overrides the today-window width.
func WithTodayDays(days int) Option {
	return func(c *Categorizer) {
		if days > 0 {
			c.todayDays = days
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Categorizer) { c.clock = clock }
}

// New builds a Categorizer with defaults.
func New(opts ...Option) *Categorizer {
	c := &Categorizer{
		todayDays: DefaultTodayDays,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// scored pairs a cluster with its most recent publication time so sorting
// still works after dormant clusters shed their articles.
type scored struct {
	cluster core.Cluster
	recent  time.Time
}

// Categorize partitions the clusters into status buckets. Singleton clusters
// with no article in the today window are dropped.
func (c *Categorizer) Categorize(clusters []core.Cluster) core.Corpus {
	now := c.clock()
	cutoff := now.Add(-time.Duration(c.todayDays) * 24 * time.Hour)

	var newStories, continuing, dormant, singles []scored
	for _, cluster := range clusters {
		today, older := partition(cluster.Articles, cutoff)
		recent := mostRecent(cluster.Articles)

		cluster.TotalCount = len(cluster.Articles)
		cluster.TodayCount = len(today)
		if cluster.RepresentativeTitle == "" && len(cluster.Articles) > 0 {
			cluster.RepresentativeTitle = cluster.Articles[0].Title
		}

		switch {
		case cluster.TotalCount >= 2 && len(today) > 0 && len(older) == 0:
			cluster.Status = core.StatusNew
			newStories = append(newStories, scored{cluster, recent})
		case cluster.TotalCount >= 2 && len(today) > 0 && len(older) > 0:
			cluster.Status = core.StatusContinuing
			cluster.Articles = today
			continuing = append(continuing, scored{cluster, recent})
		case cluster.TotalCount >= 2:
			cluster.Status = core.StatusDormant
			cluster.Articles = nil
			dormant = append(dormant, scored{cluster, recent})
		case cluster.TotalCount == 1 && len(today) > 0:
			cluster.Status = core.StatusSingle
			singles = append(singles, scored{cluster, recent})
		default:
			// Stale singleton: drop.
		}
	}

	// Continuing weighs total volume against today's activity; new and
	// dormant sort on volume alone.
	sortClusters(continuing, func(c core.Cluster) int { return c.TotalCount * c.TodayCount })
	sortClusters(newStories, func(c core.Cluster) int { return c.TotalCount })
	sortClusters(dormant, func(c core.Cluster) int { return c.TotalCount })
	sortClusters(singles, func(c core.Cluster) int { return c.TotalCount })

	return core.Corpus{
		New:         extract(newStories),
		Continuing:  extract(continuing),
		Dormant:     extract(dormant),
		Singles:     extract(singles),
		GeneratedAt: now,
	}
}

// partition splits articles at the cutoff. Articles with a guessed date count
// as today rather than silently aging out.
func partition(articles []core.Article, cutoff time.Time) (today, older []core.Article) {
	for _, a := range articles {
		if a.DateGuessed || !a.PublishedAt.Before(cutoff) {
			today = append(today, a)
		} else {
			older = append(older, a)
		}
	}
	return today, older
}

func mostRecent(articles []core.Article) time.Time {
	var recent time.Time
	for _, a := range articles {
		if a.PublishedAt.After(recent) {
			recent = a.PublishedAt
		}
	}
	return recent
}

// sortClusters orders by the score descending, breaking ties on the most
// recent publication time descending. The sort is stable so equal clusters
// keep their input order.
func sortClusters(items []scored, score func(core.Cluster) int) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := score(items[i].cluster), score(items[j].cluster)
		if si != sj {
			return si > sj
		}
		return items[i].recent.After(items[j].recent)
	})
}

func extract(items []scored) []core.Cluster {
	if len(items) == 0 {
		return nil
	}
	out := make([]core.Cluster, len(items))
	for i, s := range items {
		out[i] = s.cluster
	}
	return out
}
