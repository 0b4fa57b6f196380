package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileEmpty(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 0.5))
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.95))
}

func TestPercentileMedianOfOddSet(t *testing.T) {
	values := []float64{1, 3, 2}
	assert.Equal(t, 2.0, percentile(values, 0.5))
}

func TestPercentileP95Interpolates(t *testing.T) {
	values := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	// Unsorted input must still be handled.
	shuffled := append([]float64(nil), values...)
	shuffled[0], shuffled[99] = shuffled[99], shuffled[0]

	got := percentile(shuffled, 0.95)
	assert.InDelta(t, 95.05, got, 0.001)
}
