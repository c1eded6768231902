package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStartsSettledAtValue(t *testing.T) {
	s := New(0.5, 480)
	assert.Equal(t, 0.5, s.Value())
	assert.Equal(t, 0.5, s.Target())
	assert.False(t, s.IsRamping())
}

func TestNewFloorsRampLength(t *testing.T) {
	s := New(1.0, 0)
	s.SetTarget(2.0)
	assert.True(t, s.IsRamping())
	s.Next()
	assert.False(t, s.IsRamping())
	assert.Equal(t, 2.0, s.Value())
}

func TestSetImmediateSnapsWithNoRamp(t *testing.T) {
	s := New(0.0, 480)
	s.SetTarget(1.0)
	s.Next()
	assert.True(t, s.IsRamping())

	s.SetImmediate(0.25)
	assert.Equal(t, 0.25, s.Value())
	assert.Equal(t, 0.25, s.Target())
	assert.False(t, s.IsRamping())
}

func TestSetTargetRampsLinearlyToCompletion(t *testing.T) {
	s := New(0.0, 10)
	s.SetTarget(1.0)

	for i := 0; i < 9; i++ {
		assert.True(t, s.IsRamping())
		s.Next()
	}
	last := s.Next()
	assert.Equal(t, 1.0, last)
	assert.False(t, s.IsRamping())
}

func TestSetTargetRetargetsFromCurrentNotOldTarget(t *testing.T) {
	s := New(0.0, 100)
	s.SetTarget(1.0)
	for i := 0; i < 50; i++ {
		s.Next()
	}
	midway := s.Value()

	s.SetTarget(0.0)
	assert.True(t, s.IsRamping())

	next := s.Next()
	assert.Less(t, next, midway)

	for s.IsRamping() {
		s.Next()
	}
	assert.Equal(t, 0.0, s.Value())
}

func TestNextPastCompletionHoldsSteady(t *testing.T) {
	s := New(0.0, 4)
	s.SetTarget(1.0)
	for i := 0; i < 4; i++ {
		s.Next()
	}
	assert.False(t, s.IsRamping())
	assert.Equal(t, 1.0, s.Next())
	assert.Equal(t, 1.0, s.Next())
}

func TestFillWritesEverySampleAndReturnsFinalValue(t *testing.T) {
	s := New(0.0, 8)
	s.SetTarget(1.0)

	buf := make([]float64, 8)
	final := s.Fill(buf)

	assert.Equal(t, 1.0, final)
	assert.Equal(t, 1.0, buf[7])
	for i := 1; i < len(buf); i++ {
		assert.GreaterOrEqual(t, buf[i], buf[i-1])
	}
}

func TestApplyScalingZeroIsIdentity(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		assert.Equal(t, v, ApplyScaling(v, 0))
	}
}

func TestApplyScalingZeroValueIsUnchanged(t *testing.T) {
	assert.Equal(t, 0.0, ApplyScaling(0, 0.8))
	assert.Equal(t, 0.0, ApplyScaling(0, -0.8))
}

func TestApplyScalingStaysWithinUnitRange(t *testing.T) {
	for _, scaling := range []float64{-1, -0.5, 0.5, 1} {
		for _, v := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0} {
			out := ApplyScaling(v, scaling)
			assert.GreaterOrEqual(t, out, 0.0)
			assert.LessOrEqual(t, out, 1.0)
		}
	}
}

func TestApplyScalingEndpointsAreFixed(t *testing.T) {
	for _, scaling := range []float64{-1, -0.5, 0.5, 1} {
		assert.InDelta(t, 1.0, ApplyScaling(1.0, scaling), 1e-9)
	}
}

func TestApplyScalingOppositeSignsBowOppositeDirections(t *testing.T) {
	const v = 0.5
	positive := ApplyScaling(v, 0.8)
	negative := ApplyScaling(v, -0.8)
	assert.NotEqual(t, positive, negative)
}
