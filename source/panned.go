package source

import (
	"math"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/param"
)

// Panned wraps a stereo Source, applying smoothed equal-power (constant
// power) panning in [-1,1]. Wrapping a non-stereo source is a
// configuration error callers are expected to avoid; Write treats any
// channel count other than 2 as a pass-through with no panning applied.
type Panned struct {
	inner sonora.Source
	pan   param.Smoothed
}

// NewPanned wraps inner at the given initial pan position in [-1,1]
// (-1 hard left, 0 center, 1 hard right).
func NewPanned(inner sonora.Source, pan float64) *Panned {
	return &Panned{inner: inner, pan: param.New(pan, param.DefaultRampSamples)}
}

// SetPan begins ramping toward a new pan position.
func (p *Panned) SetPan(pan float64) { p.pan.SetTarget(pan) }

func (p *Panned) ChannelCount() int { return p.inner.ChannelCount() }
func (p *Panned) SampleRate() int   { return p.inner.SampleRate() }
func (p *Panned) IsExhausted() bool { return p.inner.IsExhausted() }
func (p *Panned) Weight() int       { return p.inner.Weight() }

func (p *Panned) Write(out []float32, t sonora.SourceTime) (int, error) {
	n, err := p.inner.Write(out, t)
	if err != nil {
		return 0, err
	}
	if p.inner.ChannelCount() != 2 {
		return n, nil
	}
	for f := 0; f < n; f++ {
		l, r := equalPowerGains(p.pan.Next())
		base := f * 2
		out[base] *= float32(l)
		out[base+1] *= float32(r)
	}
	return n, nil
}

// equalPowerGains returns the left/right gain for pan in [-1,1] such
// that l*l + r*r == 1 for any pan position.
func equalPowerGains(pan float64) (left, right float64) {
	angle := (pan + 1.0) * 0.25 * math.Pi
	return math.Cos(angle), math.Sin(angle)
}
