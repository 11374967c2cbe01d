package mathvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 0.974631846, Cosine(a, b), 1e-9)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.Zero(t, Cosine(a, []float32{0, 0, 0}))
	assert.Zero(t, Cosine(a, []float32{1, 2}))
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 32.0, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-9)
	assert.Zero(t, Dot([]float32{1}, []float32{1, 2}))
}

func TestL2(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 5.0, L2Distance(a, b), 1e-9)
	assert.InDelta(t, 25.0, SquaredL2(a, b), 1e-9)
	assert.InDelta(t, 1.0/6.0, L2Similarity(a, b), 1e-9)
	assert.InDelta(t, 1.0, L2Similarity(a, a), 1e-9)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	assert.InDelta(t, 0.6, float64(n[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(n[1]), 1e-6)
	assert.Equal(t, []float32{3, 4}, v)

	NormalizeInPlace(v)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, []float32{0, 0}, Normalize(zero))
	NormalizeInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
