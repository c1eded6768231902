package source

import (
	"testing"

	"github.com/intuitionamiga/sonora"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// boundedSource produces a fixed, rapid-chosen amount of silence before
// reporting itself exhausted, used to drive every wrapper in this
// package through rapid-generated buffer sizes.
type boundedSource struct {
	channels, sampleRate int
	framesLeft           int
}

func (b *boundedSource) ChannelCount() int { return b.channels }
func (b *boundedSource) SampleRate() int   { return b.sampleRate }
func (b *boundedSource) IsExhausted() bool { return b.framesLeft <= 0 }
func (b *boundedSource) Weight() int {
	if b.framesLeft <= 0 {
		return 0
	}
	return 1
}
func (b *boundedSource) Write(out []float32, _ sonora.SourceTime) (int, error) {
	frames := len(out) / b.channels
	if frames > b.framesLeft {
		frames = b.framesLeft
	}
	for i := 0; i < frames*b.channels; i++ {
		out[i] = 0.5
	}
	b.framesLeft -= frames
	return frames, nil
}

// wrapperUnderTest returns every wrapper this package exports, each
// built over a fresh boundedSource so rapid can drive the shared
// Source contract through all of them uniformly.
func wrapperUnderTest(t *rapid.T, channels, sampleRate, framesLeft int) map[string]sonora.Source {
	mk := func() *boundedSource {
		return &boundedSource{channels: channels, sampleRate: sampleRate, framesLeft: framesLeft}
	}
	return map[string]sonora.Source{
		"raw":       mk(),
		"amplified": NewAmplified(mk(), 1.0),
		"panned":    NewPanned(mk(), 0),
		"measured":  NewMeasured(mk()),
		"guarded":   NewGuarded(mk()),
		"converted": NewConverted(mk(), sampleRate, channels, NewLinearResampler(sampleRate, sampleRate)),
	}
}

// TestPropertyWriteReturnIsBounded checks universal invariant 1: for
// every Source and every Write call, 0 <= n <= len(out)/channels.
func TestPropertyWriteReturnIsBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		channels := rapid.SampledFrom([]int{1, 2}).Draw(rt, "channels")
		sampleRate := 48000
		framesLeft := rapid.IntRange(0, 64).Draw(rt, "framesLeft")
		bufFrames := rapid.IntRange(0, 128).Draw(rt, "bufFrames")

		for name, src := range wrapperUnderTest(rt, channels, sampleRate, framesLeft) {
			out := make([]float32, bufFrames*channels)
			n, err := src.Write(out, sonora.SourceTime{})
			if err != nil {
				continue
			}
			assert.GreaterOrEqualf(t, n, 0, "%s: n must be >= 0", name)
			assert.LessOrEqualf(t, n, bufFrames, "%s: n must be <= requested frames", name)
		}
	})
}

// TestPropertyExhaustedStaysExhausted checks universal invariant 2:
// once a Source reports exhausted, every subsequent Write returns 0.
func TestPropertyExhaustedStaysExhausted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		channels := rapid.SampledFrom([]int{1, 2}).Draw(rt, "channels")
		framesLeft := rapid.IntRange(0, 16).Draw(rt, "framesLeft")

		for name, src := range wrapperUnderTest(rt, channels, 48000, framesLeft) {
			out := make([]float32, 32*channels)
			for !src.IsExhausted() {
				if _, err := src.Write(out, sonora.SourceTime{}); err != nil {
					break
				}
			}
			n, err := src.Write(out, sonora.SourceTime{})
			if err == nil {
				assert.Equalf(t, 0, n, "%s: exhausted source must return 0 thereafter", name)
			}
		}
	})
}

// TestPropertyZeroLengthBufferReturnsZero checks the zero-length
// boundary behavior: write(&mut [], t) returns 0 without error.
func TestPropertyZeroLengthBufferReturnsZero(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		channels := rapid.SampledFrom([]int{1, 2}).Draw(rt, "channels")
		for name, src := range wrapperUnderTest(rt, channels, 48000, 8) {
			n, err := src.Write(nil, sonora.SourceTime{})
			assert.NoErrorf(t, err, "%s: zero-length write must not error", name)
			assert.Equalf(t, 0, n, "%s: zero-length write must return 0", name)
		}
	})
}

// TestPropertyBipolarUnipolarRoundTrip checks the round-trip law:
// unipolar = (bipolar+1)/2 and bipolar = (unipolar-0.5)*2 compose to
// the identity.
func TestPropertyBipolarUnipolarRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bipolar := rapid.Float64Range(-1, 1).Draw(rt, "bipolar")
		unipolar := (bipolar + 1) / 2
		roundTripped := (unipolar - 0.5) * 2
		assert.InDelta(t, bipolar, roundTripped, 1e-9)
	})
}

// TestPropertySingleVolumeSetProducesOneRamp checks that repeating the
// same SetGain value collapses to a single outgoing ramp rather than
// restarting one per call: the smoothed value should already have
// settled after one ramp's worth of frames regardless of how many
// times the same target was set.
func TestPropertySingleVolumeSetProducesOneRamp(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		target := rapid.Float64Range(0, 2).Draw(rt, "target")
		repeats := rapid.IntRange(1, 5).Draw(rt, "repeats")

		src := &boundedSource{channels: 1, sampleRate: 48000, framesLeft: 1 << 20}
		amp := NewAmplified(src, 1.0)
		for i := 0; i < repeats; i++ {
			amp.SetGain(target)
		}

		out := make([]float32, 4096)
		_, err := amp.Write(out, sonora.SourceTime{})
		if err == nil {
			assert.InDelta(t, target, amp.Gain(), 1e-6)
		}
	})
}
