// Package retrieval ranks stored chunks by relevance to a query
// embedding. Two interchangeable strategies exist: in-process cosine
// scoring over a loaded candidate set, and index-assisted ordering
// pushed down to pgvector. Both produce the same descending-score
// contract.
package retrieval

import "math"

// CosineSimilarity computes dot(a,b) / (|a|*|b|) for two equal-length
// vectors. Degenerate inputs are treated as "no signal", never as an
// error: a length mismatch or a zero-magnitude vector yields 0, so the
// result is always a finite value in [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
