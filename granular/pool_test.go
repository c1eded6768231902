package granular

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineBuffer(frames, channels, sampleRate int, freq float64) []float32 {
	buf := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
		for c := 0; c < channels; c++ {
			buf[i*channels+c] = v
		}
	}
	return buf
}

func TestWindowSamplesStayInRange(t *testing.T) {
	for mode := WindowHann; mode < windowModeCount; mode++ {
		for i := 0; i < 100; i++ {
			phase := float64(i) / 100.0
			v := Sample(mode, phase)
			assert.GreaterOrEqual(t, v, float32(-0.01))
			assert.LessOrEqual(t, v, float32(1.01))
		}
	}
}

func TestSequentialCrossfadePoints(t *testing.T) {
	assert.Equal(t, 0.5, WindowHann.SequentialCrossfadePoint())
	assert.Equal(t, 0.9, WindowTrapezoid.SequentialCrossfadePoint())
	assert.Equal(t, 0.8, WindowExponential.SequentialCrossfadePoint())
}

func TestGrainActivateAndProcessToCompletion(t *testing.T) {
	var g Grain
	g.Activate(0, 10, 1.0, false, 1.0, 0.0, WindowHann)
	require.True(t, g.Active)
	for i := 0; i < 10; i++ {
		g.Process()
	}
	assert.False(t, g.Active)
}

func TestPoolProducesAudioInCloudMode(t *testing.T) {
	pool := NewPool(16, 48000)
	pool.SetSampleBuffer(sineBuffer(4800, 1, 48000, 440), 1)
	pool.Start()

	params := DefaultParameters()
	output := make([]float32, 48000*2) // 1 second stereo
	audible := pool.Process(output, 2, params, Modulation{})
	assert.True(t, audible)

	hasSignal := false
	for _, v := range output {
		if v != 0 {
			hasSignal = true
			break
		}
	}
	assert.True(t, hasSignal)
}

func TestPoolSequentialModeKeepsAtMostTwoActiveGrains(t *testing.T) {
	pool := NewPool(16, 48000)
	pool.SetSampleBuffer(sineBuffer(4800, 1, 48000, 440), 1)
	pool.Start()

	params := DefaultParameters()
	params.Overlap = OverlapSequential
	params.SizeMs = 50
	output := make([]float32, 200*2)
	pool.Process(output, 2, params, Modulation{})
	assert.LessOrEqual(t, len(pool.active), 2)
}

func TestPoolStopLetsGrainsFinishThenExhausts(t *testing.T) {
	pool := NewPool(16, 48000)
	pool.SetSampleBuffer(sineBuffer(4800, 1, 48000, 440), 1)
	pool.Start()
	params := DefaultParameters()
	params.SizeMs = 20

	output := make([]float32, 480*2)
	pool.Process(output, 2, params, Modulation{})
	pool.Stop()
	assert.False(t, pool.IsExhausted())

	for i := 0; i < 50 && !pool.IsExhausted(); i++ {
		pool.Process(output, 2, params, Modulation{})
	}
	assert.True(t, pool.IsExhausted())
}

func TestConstantPowerPanMidpointIsEqual(t *testing.T) {
	l, r := constantPowerPan(0)
	assert.InDelta(t, l, r, 1e-9)
	assert.InDelta(t, l*l+r*r, 1.0, 1e-9)
}

func TestConstantPowerPanExtremesIsolateChannel(t *testing.T) {
	l, r := constantPowerPan(-1)
	assert.InDelta(t, 1.0, l, 1e-9)
	assert.InDelta(t, 0.0, r, 1e-9)
}

func TestRemEuclidWrapsIntoRange(t *testing.T) {
	assert.InDelta(t, 0.5, remEuclid(-0.5, 1.0), 1e-9)
	assert.InDelta(t, 0.25, remEuclid(1.25, 1.0), 1e-9)
}
