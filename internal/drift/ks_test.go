package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKSTestIdenticalSamples(t *testing.T) {
	sample := normalLike(100, 13.0, 0.5)

	statistic, pValue := ksTest(sample, sample)

	assert.InDelta(t, 0.0, statistic, 1e-12)
	assert.InDelta(t, 1.0, pValue, 1e-9)
}

func TestKSTestDisjointSamples(t *testing.T) {
	low := normalLike(100, 10.0, 0.5)
	high := normalLike(100, 100.0, 0.5)

	statistic, pValue := ksTest(low, high)

	assert.InDelta(t, 1.0, statistic, 1e-12)
	assert.Less(t, pValue, 1e-6)
}

func TestKSTestUnsortedInputLeftIntact(t *testing.T) {
	reference := []float64{13.2, 12.8, 13.0, 13.4, 12.6}
	current := []float64{13.1, 12.9, 13.3, 12.7, 13.5}
	refCopy := append([]float64(nil), reference...)
	curCopy := append([]float64(nil), current...)

	ksTest(reference, current)

	assert.Equal(t, refCopy, reference)
	assert.Equal(t, curCopy, current)
}

func TestKSTestEmptySample(t *testing.T) {
	statistic, pValue := ksTest(nil, normalLike(10, 13.0, 0.5))

	assert.Zero(t, statistic)
	assert.Equal(t, 1.0, pValue)
}

func TestKSPValueBounds(t *testing.T) {
	tests := []struct {
		name string
		d    float64
		n, m int
	}{
		{"tiny statistic", 0.01, 60, 60},
		{"moderate statistic", 0.25, 60, 120},
		{"maximal statistic", 1.0, 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ksPValue(tt.d, tt.n, tt.m)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		})
	}

	// Monotone: a larger statistic can never raise the p-value
	assert.Greater(t, ksPValue(0.05, 60, 60), ksPValue(0.3, 60, 60))
}
