// Package clustering groups embedded articles into story clusters. Two
// algorithms are offered: a threshold-agglomerative pass (default for news)
// and a DBSCAN-style density sweep with silhouette model selection. Both are
// deterministic given their inputs.
package clustering

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"daybrief/internal/core"
	"daybrief/internal/logger"
)

// DefaultThreshold is the minimum cosine similarity for an article to join an
// existing cluster in the agglomerative pass.
const DefaultThreshold = 0.575

// AlgorithmThreshold and AlgorithmDBSCAN select the clustering procedure.
const (
	AlgorithmThreshold = "threshold"
	AlgorithmDBSCAN    = "dbscan"
)

// Config holds clustering tunables.
type Config struct {
	Algorithm   string  // "threshold" (default) or "dbscan"
	Threshold   float64 // agglomerative similarity cutoff, default 0.575
	EpsStep     float64 // DBSCAN eps sweep step, default 0.01 (0.03 for keywords)
	UseKeywords bool    // cluster on keyword Jaccard instead of vectors
}

// Labeler generates a short human label from a cluster's article titles.
// The ranker implements this; failures fall back to the first title.
type Labeler interface {
	LabelCluster(ctx context.Context, titles []string) (string, error)
}

// Cluster groups the articles and labels every multi-article cluster.
// labeler may be nil. The input slice is not modified.
func Cluster(ctx context.Context, articles []core.Article, cfg Config, labeler Labeler) []core.Cluster {
	if len(articles) == 0 {
		return nil
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}

	var groups [][]core.Article
	switch cfg.Algorithm {
	case AlgorithmDBSCAN:
		groups = densityCluster(articles, cfg)
	default:
		groups = thresholdCluster(articles, cfg.Threshold)
	}

	clusters := make([]core.Cluster, 0, len(groups))
	for i, members := range groups {
		id := fmt.Sprintf("cluster_%d", i)
		for j := range members {
			members[j].ClusterID = id
		}
		clusters = append(clusters, core.Cluster{
			ID:                  id,
			Label:               clusterLabel(ctx, members, labeler),
			Articles:            members,
			TotalCount:          len(members),
			RepresentativeTitle: members[0].Title,
		})
	}
	return clusters
}

// thresholdCluster implements the agglomerative pass: articles are visited in
// descending publication order; each joins the most similar existing cluster
// when that similarity clears the threshold, otherwise it starts a new one.
// Ties prefer the older (lower-index) cluster. Articles without a usable
// vector never participate in similarity and end up as singletons.
func thresholdCluster(articles []core.Article, threshold float64) [][]core.Article {
	ordered := sortByPublishedDesc(articles)

	type agg struct {
		members []core.Article
		sum     []float64 // running component sum; centroid = sum / len(members)
	}

	var clusters []*agg
	var singletons [][]core.Article

	for _, article := range ordered {
		if !article.HasVector() {
			singletons = append(singletons, []core.Article{article})
			continue
		}

		bestIdx := -1
		bestSim := 0.0
		for i, c := range clusters {
			sim := centroidSimilarity(article.Vector, c.sum, len(c.members))
			// Strictly greater keeps ties on the older (lower-index) cluster.
			if sim >= threshold && (bestIdx == -1 || sim > bestSim) {
				bestSim = sim
				bestIdx = i
			}
		}

		if bestIdx >= 0 {
			c := clusters[bestIdx]
			c.members = append(c.members, article)
			for j, v := range article.Vector {
				c.sum[j] += v
			}
		} else {
			sum := make([]float64, len(article.Vector))
			copy(sum, article.Vector)
			clusters = append(clusters, &agg{members: []core.Article{article}, sum: sum})
		}
	}

	groups := make([][]core.Article, 0, len(clusters)+len(singletons))
	for _, c := range clusters {
		groups = append(groups, c.members)
	}
	groups = append(groups, singletons...)
	return groups
}

// centroidSimilarity computes cosine similarity between a vector and a
// cluster centroid given the centroid's running component sum.
func centroidSimilarity(vec, sum []float64, count int) float64 {
	if count == 0 || len(vec) != len(sum) {
		return -1
	}
	centroid := make([]float64, len(sum))
	for i, s := range sum {
		centroid[i] = s / float64(count)
	}
	return 1.0 - CosineDistance(vec, centroid)
}

// sortByPublishedDesc returns a copy sorted by publication time descending,
// with URL breaking timestamp ties. Scraped sources stamp whole batches with
// the same time, so without the tie-break the order (and with it cluster
// membership) would depend on map iteration upstream.
func sortByPublishedDesc(articles []core.Article) []core.Article {
	ordered := make([]core.Article, len(articles))
	copy(ordered, articles)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].PublishedAt.Equal(ordered[j].PublishedAt) {
			return ordered[i].PublishedAt.After(ordered[j].PublishedAt)
		}
		return ordered[i].URL < ordered[j].URL
	})
	return ordered
}

// clusterLabel asks the labeler for a short label when the cluster has at
// least two articles; any failure keeps the first article's title.
func clusterLabel(ctx context.Context, members []core.Article, labeler Labeler) string {
	fallback := members[0].Title
	if len(members) < 2 || labeler == nil {
		return fallback
	}

	titles := make([]string, len(members))
	for i, a := range members {
		titles[i] = a.Title
	}

	label, err := labeler.LabelCluster(ctx, titles)
	if err != nil || strings.TrimSpace(label) == "" {
		if err != nil {
			logger.Warn("cluster labeling failed", map[string]interface{}{"error": err.Error()})
		}
		return fallback
	}
	return strings.TrimSpace(label)
}
