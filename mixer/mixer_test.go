package mixer

import (
	"testing"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSource struct {
	channels, sampleRate int
	value                float32
	exhausted            bool
}

func (s *constSource) ChannelCount() int { return s.channels }
func (s *constSource) SampleRate() int   { return s.sampleRate }
func (s *constSource) IsExhausted() bool { return s.exhausted }
func (s *constSource) Weight() int       { return 1 }
func (s *constSource) Write(out []float32, _ sonora.SourceTime) (int, error) {
	for i := range out {
		out[i] = s.value
	}
	return len(out) / s.channels, nil
}

func newBlock(frames, channels int) []float32 {
	return make([]float32, frames*channels)
}

func TestMixerSumsSources(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 2, 48000, nil)
	m.AddSource(&constSource{channels: 2, sampleRate: 48000, value: 0.25})
	m.AddSource(&constSource{channels: 2, sampleRate: 48000, value: 0.1})

	out := newBlock(16, 2)
	audible, err := m.ProcessBlock(out, 2, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	assert.True(t, audible)
	for _, v := range out {
		assert.InDelta(t, 0.35, v, 1e-6)
	}
}

func TestMixerAppliesVolume(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	m.volume.SetImmediate(0.5)

	out := newBlock(8, 1)
	_, err := m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestMixerAppliesEffectChain(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	m.AddEffect(GainEffect{Gain: 0.5})

	out := newBlock(8, 1)
	_, err := m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestRemoveEffectTakesItOutOfChain(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	id, err := m.AddEffect(GainEffect{Gain: 0.5})
	require.NoError(t, err)
	m.RemoveEffect(id)

	out := newBlock(8, 1)
	_, err = m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestExhaustedSourcesArePruned(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0, exhausted: true})

	out := newBlock(8, 1)
	m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})

	m.mu.RLock()
	n := len(m.sources)
	m.mu.RUnlock()
	assert.Equal(t, 0, n)
}

func TestSubmixerNestsCorrectly(t *testing.T) {
	child := New(sonora.NewMixerID(), 2, 48000, nil)
	child.AddSource(&constSource{channels: 2, sampleRate: 48000, value: 0.2})

	parent := New(sonora.PrimaryMixerID, 2, 48000, nil)
	parent.AddSubmixer(child)

	out := newBlock(16, 2)
	audible, err := parent.ProcessBlock(out, 2, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	assert.True(t, audible)
	for _, v := range out {
		assert.InDelta(t, 0.2, v, 1e-6)
	}
}

func TestConcurrentSubmixerDispatchMatchesSerial(t *testing.T) {
	pool := workerpool.New(2, 8)
	defer pool.Close()

	parent := New(sonora.PrimaryMixerID, 2, 48000, pool)
	for i := 0; i < 3; i++ {
		child := New(sonora.NewMixerID(), 2, 48000, nil)
		child.AddSource(&constSource{channels: 2, sampleRate: 48000, value: 0.1})
		parent.AddSubmixer(child)
	}

	out := newBlock(16, 2)
	audible, err := parent.ProcessBlock(out, 2, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	assert.True(t, audible)
	for _, v := range out {
		assert.InDelta(t, 0.3, v, 1e-6)
	}
}

func TestScheduledCommandTakesEffectNextBlock(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	out := newBlock(8, 1)
	m.ProcessBlock(out, 1, 48000, sonora.SourceTime{}) // establish currentFrame

	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	_, err := m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out[0], 1e-6)
}

func TestRemoveAllEffectsClearsChain(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	m.AddEffect(GainEffect{Gain: 0.1})
	m.AddEffect(GainEffect{Gain: 0.1})
	m.RemoveAllEffects()

	out := newBlock(8, 1)
	m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestScheduledStopFadesOutRatherThanSplicing(t *testing.T) {
	m := New(sonora.PrimaryMixerID, 1, 48000, nil)
	id, err := m.AddSource(&constSource{channels: 1, sampleRate: 48000, value: 1.0})
	require.NoError(t, err)
	m.RemoveSourceAt(m.CurrentFrame(), id)

	out := newBlock(480, 1) // 10ms, well inside the 50ms default fade
	_, err = m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, out[0], 1e-3, "fade should start at full level")
	assert.Less(t, out[len(out)-1], out[0], "fade should be ramping toward silence")

	m.mu.RLock()
	_, stillPresent := func() (sourceEntry, bool) {
		for _, e := range m.sources {
			if e.id == id {
				return e, true
			}
		}
		return sourceEntry{}, false
	}()
	m.mu.RUnlock()
	assert.True(t, stillPresent, "source should still be fading, not yet spliced out")

	for i := 0; i < 20; i++ {
		_, err := m.ProcessBlock(out, 1, 48000, sonora.SourceTime{})
		require.NoError(t, err)
	}

	m.mu.RLock()
	n := len(m.sources)
	m.mu.RUnlock()
	assert.Equal(t, 0, n, "source should be detached once its fade-out completes")
}
