// Package param implements the engine's smoothed parameter: a value
// that ramps linearly toward a target over a fixed number of samples
// instead of jumping, avoiding the zipper noise an instant change in
// gain, pan or pitch produces in a running audio stream.
package param

// DefaultRampSamples is the ramp length used when a caller does not
// specify one explicitly: 10ms at 48kHz, long enough to hide a step
// change from the ear without audibly smearing a fast gesture.
const DefaultRampSamples = 480

// Smoothed holds a current value, a target value, and the per-sample
// increment needed to reach the target over its configured ramp
// length. It is not safe for concurrent use — callers own one per
// voice/channel and update it from the audio thread only.
type Smoothed struct {
	current    float64
	target     float64
	increment  float64
	remaining  int
	rampLength int
}

// New creates a Smoothed parameter starting already at value, with no
// ramp in flight.
func New(value float64, rampLength int) Smoothed {
	if rampLength < 1 {
		rampLength = 1
	}
	return Smoothed{current: value, target: value, rampLength: rampLength}
}

// Value returns the current (possibly mid-ramp) value.
func (s *Smoothed) Value() float64 { return s.current }

// Target returns the value the parameter is ramping toward.
func (s *Smoothed) Target() float64 { return s.target }

// SetImmediate snaps the parameter to value with no ramp, used at
// voice activation when there is nothing yet to smooth away from.
func (s *Smoothed) SetImmediate(value float64) {
	s.current = value
	s.target = value
	s.remaining = 0
	s.increment = 0
}

// SetTarget begins ramping toward value over the parameter's configured
// ramp length. Calling SetTarget again before a ramp completes retargets
// from the current (not the old target) value, so a rapid back-and-forth
// gesture never overshoots.
func (s *Smoothed) SetTarget(value float64) {
	s.target = value
	s.remaining = s.rampLength
	s.increment = (value - s.current) / float64(s.rampLength)
}

// Next advances the ramp by one sample and returns the new current value.
func (s *Smoothed) Next() float64 {
	if s.remaining <= 0 {
		return s.current
	}
	s.current += s.increment
	s.remaining--
	if s.remaining == 0 {
		s.current = s.target
	}
	return s.current
}

// IsRamping reports whether the parameter has not yet reached its target.
func (s *Smoothed) IsRamping() bool { return s.remaining > 0 }

// Fill advances the ramp once per element of buf, writing each step's
// value, and returns the final current value. This is the hot-path
// entry point callers in a per-block audio loop use instead of calling
// Next in their own loop.
func (s *Smoothed) Fill(buf []float64) float64 {
	for i := range buf {
		buf[i] = s.Next()
	}
	return s.current
}
