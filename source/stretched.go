package source

import (
	"math"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/param"
)

// stretchChunkFrames bounds how many output frames Stretched renders
// per call into the underlying Stretcher, so a speed glide in flight is
// sampled finely enough that even a fast glide doesn't step audibly.
const stretchChunkFrames = 64

// Stretched wraps a Source, applying a smoothed playback-speed
// multiplier via a Stretcher. Speed changes glide at a caller-chosen
// rate (expressed in semitones per second, the natural unit for a
// pitch-preserving stretch) rather than snapping, avoiding a click when
// a handle's speed is changed mid-playback.
type Stretched struct {
	inner     sonora.Source
	stretcher Stretcher
	speed     param.Smoothed
	inBuf     []float32
}

// NewStretched wraps inner, applying stretcher starting at initialSpeed
// (1.0 for unity) until SetSpeed is called.
func NewStretched(inner sonora.Source, stretcher Stretcher, initialSpeed float64) *Stretched {
	if initialSpeed <= 0 {
		initialSpeed = 1.0
	}
	return &Stretched{inner: inner, stretcher: stretcher, speed: param.New(initialSpeed, param.DefaultRampSamples)}
}

// SetSpeed begins gliding toward the given playback speed multiplier
// (1.0 unity) at glideSemitonesPerSec semitones per second. A
// non-positive glide rate falls back to the engine's default ramp
// length instead of computing one from the semitone distance.
func (s *Stretched) SetSpeed(speed, glideSemitonesPerSec float64) {
	current := s.speed.Value()
	frames := param.DefaultRampSamples
	if glideSemitonesPerSec > 0 && current > 0 && speed > 0 {
		semitones := 12 * math.Log2(speed/current)
		if semitones < 0 {
			semitones = -semitones
		}
		seconds := semitones / glideSemitonesPerSec
		frames = int(seconds * float64(s.inner.SampleRate()))
		if frames < 1 {
			frames = 1
		}
	}
	ramp := param.New(current, frames)
	ramp.SetTarget(speed)
	s.speed = ramp
}

// Speed reports the current (possibly mid-glide) playback speed.
func (s *Stretched) Speed() float64 { return s.speed.Value() }

func (s *Stretched) ChannelCount() int { return s.inner.ChannelCount() }
func (s *Stretched) SampleRate() int   { return s.inner.SampleRate() }
func (s *Stretched) IsExhausted() bool { return s.inner.IsExhausted() }
func (s *Stretched) Weight() int       { return s.inner.Weight() }

func (s *Stretched) Write(out []float32, t sonora.SourceTime) (int, error) {
	channels := s.inner.ChannelCount()
	outFrames := len(out) / channels
	if outFrames == 0 {
		return 0, nil
	}
	if !s.speed.IsRamping() && s.speed.Value() == 1.0 {
		return s.inner.Write(out, t)
	}

	produced := 0
	for produced < outFrames {
		chunk := outFrames - produced
		if chunk > stretchChunkFrames {
			chunk = stretchChunkFrames
		}

		speed := s.speed.Value()
		for i := 0; i < chunk; i++ {
			speed = s.speed.Next()
		}
		if speed <= 0 {
			speed = 1
		}

		inFramesNeeded := int(float64(chunk)*speed) + 4
		needed := inFramesNeeded * channels
		if cap(s.inBuf) < needed {
			s.inBuf = make([]float32, needed)
		}
		inBuf := s.inBuf[:needed]

		n, err := s.inner.Write(inBuf, t)
		if err != nil {
			return produced, err
		}
		inBuf = inBuf[:n*channels]

		chunkOut := out[produced*channels : (produced+chunk)*channels]
		got := s.stretcher.Stretch(chunkOut, inBuf, channels, speed)
		produced += got
		if got < chunk {
			break
		}
	}
	return produced, nil
}
