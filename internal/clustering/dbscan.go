package clustering

import (
	"daybrief/internal/core"
)

// dbscanMinSamples is the density threshold: a point is a core point when its
// eps-neighborhood (including itself) holds at least this many points.
const dbscanMinSamples = 2

// epsSweepCandidates is how many eps values the sweep tries.
const epsSweepCandidates = 30

// densityCluster runs a DBSCAN sweep over eps candidates {step*k} for
// k=1..30 and keeps the labeling with the best silhouette score. Noise points
// are re-labeled as singletons so no article is ever dropped. When no
// candidate produces a valid silhouette, every article becomes a singleton.
func densityCluster(articles []core.Article, cfg Config) [][]core.Article {
	step := cfg.EpsStep
	if step == 0 {
		if cfg.UseKeywords {
			step = 0.03
		} else {
			step = 0.01
		}
	}

	// Articles without a usable signal are set aside as singletons up front.
	// The scan order fixes the point indices, so it must not depend on how
	// the caller assembled the slice.
	var clusterable []core.Article
	var singletons [][]core.Article
	for _, a := range sortByPublishedDesc(articles) {
		if usable(a, cfg.UseKeywords) {
			clusterable = append(clusterable, a)
		} else {
			singletons = append(singletons, []core.Article{a})
		}
	}

	if len(clusterable) < dbscanMinSamples {
		for _, a := range clusterable {
			singletons = append(singletons, []core.Article{a})
		}
		return singletons
	}

	distances := pairwiseDistances(clusterable, cfg.UseKeywords)

	bestScore := -2.0 // below the silhouette minimum of -1
	var bestLabels []int
	for k := 1; k <= epsSweepCandidates; k++ {
		eps := step * float64(k)
		labels := dbscan(distances, eps)
		labels = relabelNoise(labels)

		if !silhouetteValid(labels) {
			continue
		}
		score := AverageSilhouetteScore(labels, distances)
		if score > bestScore {
			bestScore = score
			bestLabels = labels
		}
	}

	if bestLabels == nil {
		for _, a := range clusterable {
			singletons = append(singletons, []core.Article{a})
		}
		return singletons
	}

	return append(groupByLabel(clusterable, bestLabels), singletons...)
}

// usable reports whether an article carries the signal the variant needs.
func usable(a core.Article, useKeywords bool) bool {
	if useKeywords {
		return len(a.Keywords) > 0
	}
	return a.HasVector()
}

// pairwiseDistances builds the N x N distance matrix: cosine distance over
// vectors, or Jaccard distance over keyword sets.
func pairwiseDistances(articles []core.Article, useKeywords bool) [][]float64 {
	n := len(articles)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			if useKeywords {
				d = jaccardDistance(articles[i].Keywords, articles[j].Keywords)
			} else {
				d = CosineDistance(articles[i].Vector, articles[j].Vector)
			}
			matrix[i][j] = d
			matrix[j][i] = d
		}
	}
	return matrix
}

// jaccardDistance is 1 - |A intersect B| / |A union B| over keyword sets.
func jaccardDistance(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := make(map[string]bool, len(a))
	for _, k := range a {
		setA[k] = true
	}
	union := len(setA)
	intersect := 0
	seenB := make(map[string]bool, len(b))
	for _, k := range b {
		if seenB[k] {
			continue
		}
		seenB[k] = true
		if setA[k] {
			intersect++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return 1.0 - float64(intersect)/float64(union)
}

// dbscan runs density clustering on a precomputed distance matrix. Returns a
// label per point; noise points get -1.
func dbscan(distances [][]float64, eps float64) []int {
	n := len(distances)
	const (
		unvisited = -2
		noise     = -1
	)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighborhoods := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if distances[i][j] <= eps {
				neighborhoods[i] = append(neighborhoods[i], j)
			}
		}
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if len(neighborhoods[i]) < dbscanMinSamples {
			labels[i] = noise
			continue
		}

		// Expand a new cluster from this core point.
		labels[i] = cluster
		queue := append([]int(nil), neighborhoods[i]...)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]

			if labels[p] == noise {
				labels[p] = cluster // border point
			}
			if labels[p] != unvisited {
				continue
			}
			labels[p] = cluster
			if len(neighborhoods[p]) >= dbscanMinSamples {
				queue = append(queue, neighborhoods[p]...)
			}
		}
		cluster++
	}
	return labels
}

// relabelNoise assigns each noise point a unique singleton label so that no
// point is globally "noise".
func relabelNoise(labels []int) []int {
	next := 0
	for _, l := range labels {
		if l >= next {
			next = l + 1
		}
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 {
			out[i] = next
			next++
		} else {
			out[i] = l
		}
	}
	return out
}

// silhouetteValid reports whether a labeling can be scored: at least two
// distinct labels, and no single label holding every point but one.
func silhouetteValid(labels []int) bool {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	if len(counts) < 2 || len(counts) == len(labels) {
		return false
	}
	for _, c := range counts {
		if c >= len(labels)-1 && len(labels) > 2 {
			return false
		}
	}
	return true
}

// groupByLabel materializes label assignments into article groups, ordered by
// first appearance so the output is deterministic.
func groupByLabel(articles []core.Article, labels []int) [][]core.Article {
	order := make([]int, 0)
	byLabel := make(map[int][]core.Article)
	for i, a := range articles {
		l := labels[i]
		if _, seen := byLabel[l]; !seen {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], a)
	}

	groups := make([][]core.Article, 0, len(order))
	for _, l := range order {
		groups = append(groups, byLabel[l])
	}
	return groups
}
