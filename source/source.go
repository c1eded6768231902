// Package source implements the wrapper adapters that compose around a
// sonora.Source to add resampling/channel conversion, smoothed gain,
// smoothed constant-power panning, CPU load measurement and panic
// isolation, plus a minimal file source and the default resampler and
// time-stretcher implementations those wrappers stand on.
package source

import "github.com/intuitionamiga/sonora"

// Resampler converts audio between sample rates. The engine treats the
// resampling algorithm itself as a pluggable, swappable concern —
// Converted only needs something satisfying this interface, not a
// particular algorithm.
type Resampler interface {
	// Resample reads from in (native rate) and writes to out (target
	// rate), returning the number of output frames produced.
	Resample(out, in []float32, channels int) int
}

// Stretcher changes playback speed without changing pitch. As with
// Resampler, the algorithm is out of scope; Stretched only needs an
// implementation of this interface.
type Stretcher interface {
	// Stretch reads from in and writes speed-adjusted audio to out,
	// returning the number of output frames produced. speed 1.0 is
	// unity (a pass-through).
	Stretch(out, in []float32, channels int, speed float64) int
}

// Empty is a Source that produces silence forever until marked
// exhausted, useful as a placeholder mixer input or in tests.
type Empty struct {
	channels   int
	sampleRate int
	exhausted  bool
}

// NewEmpty creates an Empty source.
func NewEmpty(channels, sampleRate int) *Empty {
	return &Empty{channels: channels, sampleRate: sampleRate}
}

func (e *Empty) Write(out []float32, _ sonora.SourceTime) (int, error) {
	if e.exhausted {
		return 0, nil
	}
	for i := range out {
		out[i] = 0
	}
	return len(out) / e.channels, nil
}

func (e *Empty) ChannelCount() int   { return e.channels }
func (e *Empty) SampleRate() int     { return e.sampleRate }
func (e *Empty) IsExhausted() bool   { return e.exhausted }
func (e *Empty) MarkExhausted()      { e.exhausted = true }

// Weight implements sonora.Source: silence costs nothing to produce.
func (e *Empty) Weight() int { return 0 }
