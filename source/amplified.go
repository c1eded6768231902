package source

import (
	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/param"
)

// Amplified wraps a Source, applying a smoothed gain so volume changes
// ramp rather than step (avoiding the click an instant gain change
// produces mid-stream).
type Amplified struct {
	inner sonora.Source
	gain  param.Smoothed
}

// NewAmplified wraps inner at the given initial linear gain.
func NewAmplified(inner sonora.Source, gain float64) *Amplified {
	return &Amplified{inner: inner, gain: param.New(gain, param.DefaultRampSamples)}
}

// SetGain begins ramping toward a new linear gain value over the
// default ramp length.
func (a *Amplified) SetGain(gain float64) { a.gain.SetTarget(gain) }

// GlideTo begins ramping toward gain over exactly frames samples,
// overriding the default ramp length. Used for a caller-specified
// fade-in/out duration rather than the usual fixed zipper-noise-hiding
// ramp.
func (a *Amplified) GlideTo(gain float64, frames int) {
	if frames < 1 {
		frames = 1
	}
	ramp := param.New(a.gain.Value(), frames)
	ramp.SetTarget(gain)
	a.gain = ramp
}

// Gain reports the current (possibly mid-ramp) linear gain.
func (a *Amplified) Gain() float64 { return a.gain.Value() }

func (a *Amplified) ChannelCount() int { return a.inner.ChannelCount() }
func (a *Amplified) SampleRate() int   { return a.inner.SampleRate() }
func (a *Amplified) IsExhausted() bool { return a.inner.IsExhausted() }
func (a *Amplified) Weight() int       { return a.inner.Weight() }

func (a *Amplified) Write(out []float32, t sonora.SourceTime) (int, error) {
	n, err := a.inner.Write(out, t)
	if err != nil {
		return 0, err
	}
	channels := a.inner.ChannelCount()
	for f := 0; f < n; f++ {
		g := float32(a.gain.Next())
		base := f * channels
		for c := 0; c < channels; c++ {
			out[base+c] *= g
		}
	}
	return n, nil
}
