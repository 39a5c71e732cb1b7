package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.0, Clamp01(0))
	assert.Equal(t, 0.42, Clamp01(0.42))
	assert.Equal(t, 1.0, Clamp01(1))
	assert.Equal(t, 1.0, Clamp01(3.7))
}

func TestSubScore(t *testing.T) {
	// 1 at zero, linear down to 0 at the threshold.
	assert.Equal(t, 1.0, SubScore(0, 100))
	assert.InDelta(t, 0.5, SubScore(50, 100), 1e-9)
	assert.Equal(t, 0.0, SubScore(100, 100))
	assert.Equal(t, 0.0, SubScore(250, 100))

	// Missing measurements score zero, they never score high.
	assert.Equal(t, 0.0, SubScore(-1, 100))
	// A broken threshold cannot produce a positive score.
	assert.Equal(t, 0.0, SubScore(10, 0))
	assert.Equal(t, 0.0, SubScore(10, -5))
}

func TestRateScore(t *testing.T) {
	assert.Equal(t, 0.95, RateScore(0.95))
	assert.Equal(t, 1.0, RateScore(1.3))
	assert.Equal(t, 0.0, RateScore(-0.1))
}
