package core

import "math"

// NormalizeVector normalizes a vector to unit length.
// This ensures cosine similarity can be computed via dot product.
// Returns a new normalized vector (does not modify input).
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	// Can't normalize zero vector
	if magnitude == 0 {
		return make([]float32, len(v))
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// DotProduct calculates the dot product of two vectors.
func DotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity scores two vectors of any magnitude. Zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	return DotProduct(NormalizeVector(a), NormalizeVector(b))
}
