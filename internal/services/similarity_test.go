package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 2}, []float32{-1, -2}), 1e-9)
}

func TestCosineSimilarity_ZeroNorm(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarity_MismatchedLengths(t *testing.T) {
	// Compared over the shorter prefix.
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 99}), 1e-9)
}
