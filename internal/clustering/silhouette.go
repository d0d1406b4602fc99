package clustering

import (
	"math"
)

// SilhouetteScore calculates the silhouette score for a single point.
// Returns a score between -1 and 1:
//
//	-1: point likely in the wrong cluster
//	 0: point on the border between clusters
//	+1: point well matched to its cluster
func SilhouetteScore(pointIdx int, labels []int, distances [][]float64) float64 {
	n := len(labels)
	if n == 0 || pointIdx >= n {
		return 0.0
	}

	current := labels[pointIdx]
	a := meanIntraClusterDistance(pointIdx, current, labels, distances)
	b := minInterClusterDistance(pointIdx, current, labels, distances)

	switch {
	case a < b:
		return 1.0 - (a / b)
	case a > b:
		return (b / a) - 1.0
	default:
		return 0.0
	}
}

// meanIntraClusterDistance is the mean distance to other points in the same
// cluster; 0 for a singleton.
func meanIntraClusterDistance(pointIdx, label int, labels []int, distances [][]float64) float64 {
	sum := 0.0
	count := 0
	for i, l := range labels {
		if i == pointIdx || l != label {
			continue
		}
		sum += distances[pointIdx][i]
		count++
	}
	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

// minInterClusterDistance is the minimum over other clusters of the mean
// distance to that cluster's points.
func minInterClusterDistance(pointIdx, current int, labels []int, distances [][]float64) float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		if l == current {
			continue
		}
		sums[l] += distances[pointIdx][i]
		counts[l]++
	}
	if len(counts) == 0 {
		return 1.0
	}

	min := math.MaxFloat64
	for l, count := range counts {
		mean := sums[l] / float64(count)
		if mean < min {
			min = mean
		}
	}
	return min
}

// AverageSilhouetteScore calculates the mean silhouette score across all
// points; the eps sweep uses it for model selection.
func AverageSilhouetteScore(labels []int, distances [][]float64) float64 {
	n := len(labels)
	if n == 0 {
		return 0.0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += SilhouetteScore(i, labels, distances)
	}
	return total / float64(n)
}

// CosineDistance calculates cosine distance (1 - cosine similarity) between
// two vectors. Incompatible or zero vectors get the maximum distance.
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}

	dot := 0.0
	magA := 0.0
	magB := 0.0
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0.0 || magB == 0.0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}
