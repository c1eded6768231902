package player

import (
	"sync/atomic"
	"time"

	"github.com/intuitionamiga/sonora"
)

// positionTap wraps a Source, counting the frames it has produced so
// the player can report playback position in its status events without
// every wrapper in package source needing to know about status
// reporting at all.
type positionTap struct {
	inner sonora.Source
	frame int64
}

func newPositionTap(inner sonora.Source) *positionTap { return &positionTap{inner: inner} }

func (p *positionTap) ChannelCount() int { return p.inner.ChannelCount() }
func (p *positionTap) SampleRate() int   { return p.inner.SampleRate() }
func (p *positionTap) IsExhausted() bool { return p.inner.IsExhausted() }
func (p *positionTap) Weight() int       { return p.inner.Weight() }

func (p *positionTap) Write(out []float32, t sonora.SourceTime) (int, error) {
	n, err := p.inner.Write(out, t)
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&p.frame, int64(n))
	return n, nil
}

// Position reports how much audio this source has produced so far, as
// wall-clock duration at its native sample rate.
func (p *positionTap) Position() time.Duration {
	frames := atomic.LoadInt64(&p.frame)
	rate := p.inner.SampleRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
