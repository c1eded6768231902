package source

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/intuitionamiga/sonora"
)

// Measured wraps a Source, tracking how much of its real-time budget
// each Write call consumes: an exponential moving average of
// wall-clock-time-per-frame-of-audio, the way audio_chip.go's mixer
// loop would want to know it's falling behind before an underrun
// actually happens.
type Measured struct {
	inner sonora.Source
	// loadBits stores the current load estimate (processing time as a
	// fraction of the audio time it produced) as math.Float64bits, so
	// it can be read from a status-reporting goroutine without a lock.
	loadBits uint64
}

const measuredSmoothing = 0.1 // EMA coefficient, 0 < x <= 1

// NewMeasured wraps inner with CPU load tracking.
func NewMeasured(inner sonora.Source) *Measured {
	return &Measured{inner: inner}
}

func (m *Measured) ChannelCount() int { return m.inner.ChannelCount() }
func (m *Measured) SampleRate() int   { return m.inner.SampleRate() }
func (m *Measured) IsExhausted() bool { return m.inner.IsExhausted() }
func (m *Measured) Weight() int       { return m.inner.Weight() }

// Load reports the current CPU load estimate: 1.0 means Write is taking
// exactly as long as the audio it produces lasts (the edge of an
// underrun), values above 1.0 mean it is already falling behind.
func (m *Measured) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.loadBits))
}

func (m *Measured) Write(out []float32, t sonora.SourceTime) (int, error) {
	start := time.Now()
	n, err := m.inner.Write(out, t)
	elapsed := time.Since(start)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		audioDuration := time.Duration(n) * time.Second / time.Duration(m.inner.SampleRate())
		sample := float64(elapsed) / float64(audioDuration)
		prev := m.Load()
		next := prev + measuredSmoothing*(sample-prev)
		atomic.StoreUint64(&m.loadBits, math.Float64bits(next))
	}
	return n, nil
}
