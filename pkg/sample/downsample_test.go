package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimate_NoDownsampling(t *testing.T) {
	src := []float32{1.0, 1.1, 1.2}

	// Test with nil dst
	result := Decimate(nil, src, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, src, result)

	// Test with sufficient capacity dst
	dst := make([]float32, 0, 10)
	result = Decimate(dst, src, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, src, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))

	// Non-positive limit keeps everything
	assert.Equal(t, src, Decimate(nil, src, 0))
}

func TestDecimate_WithDownsampling(t *testing.T) {
	src := make([]float64, 100)
	for i := range src {
		src[i] = float64(i) * 0.01
	}

	dst := make([]float64, 0, 20)
	result := Decimate(dst, src, 10)
	require.Equal(t, 10, len(result))

	// Should always include first element
	assert.Equal(t, src[0], result[0])
	assert.Equal(t, src[90], result[9])

	// Should reuse dst if capacity sufficient
	assert.Equal(t, cap(dst), cap(result))
}

func TestDecimate_DestinationReuse(t *testing.T) {
	first := []int{1, 2}
	second := []int{7, 8, 9}

	dst := Decimate(nil, first, 10)
	dst = Decimate(dst[:0], second, 10)
	assert.Equal(t, second, dst)

	// Modifying the result must not touch the source
	dst[0] = 0
	assert.Equal(t, 7, second[0])
}

func TestDecimate_Empty(t *testing.T) {
	result := Decimate[float32](nil, nil, 10)
	assert.Empty(t, result)
}
