package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{
			name:     "unit vector remains unchanged",
			input:    []float32{1.0, 0.0, 0.0},
			expected: []float32{1.0, 0.0, 0.0},
		},
		{
			name:     "scale non-unit vector",
			input:    []float32{3.0, 4.0},
			expected: []float32{0.6, 0.8},
		},
		{
			name:     "negative values",
			input:    []float32{-1.0, 1.0},
			expected: []float32{-1.0 / float32(math.Sqrt(2)), 1.0 / float32(math.Sqrt(2))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)
			require.Equal(t, len(tt.expected), len(result), "vector length mismatch")

			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
		})
	}
}

func TestNormalizeVector_ZeroVector(t *testing.T) {
	result := NormalizeVector([]float32{0.0, 0.0, 0.0})
	for i, v := range result {
		assert.Equal(t, float32(0.0), v, "element %d should be 0", i)
	}
}

func TestNormalizeVector_DoesNotModifyInput(t *testing.T) {
	input := []float32{3.0, 4.0}
	NormalizeVector(input)
	assert.Equal(t, []float32{3.0, 4.0}, input)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 3}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 0.6, CosineSimilarity([]float32{1, 0}, []float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
