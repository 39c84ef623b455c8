package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		tick float64
		want float64
	}{
		{"round down to dime", 42.34, 0.1, 42.3},
		{"round up to dime", 42.37, 0.1, 42.4},
		{"exact tick unchanged", 42.4, 0.1, 42.4},
		{"penny tick", 1.2345, 0.01, 1.23},
		{"zero tick returns input", 42.37, 0, 42.37},
		{"negative tick returns input", 42.37, -0.1, 42.37},
		{"strike style rounding", 4.5 * 0.94, 0.1, 4.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToTick(tt.x, tt.tick), 1e-9)
		})
	}
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Mean([]float64{}))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.25, Mean([]float64{0.2, 0.3}), 1e-9)
}
