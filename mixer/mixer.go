// Package mixer implements the hierarchical mixer graph: sources (leaf
// generators, file players, or other mixers nested as sub-mixers) are
// summed into a mixer's output, passed through its effect chain, and
// scaled by its smoothed volume. A primary mixer's direct sub-mixer
// children are processed in parallel across a worker pool once there
// are enough of them to be worth the dispatch cost.
package mixer

import (
	"fmt"
	"sync"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/param"
	"github.com/intuitionamiga/sonora/workerpool"
)

// defaultFadeOutSeconds is the fade-out window a scheduled stop applies
// before a source is actually detached, so a stop never produces an
// audible click.
const defaultFadeOutSeconds = 0.05

type sourceEntry struct {
	id         sonora.SourceID
	src        sonora.Source
	isSubmixer bool
	scratch    []float32

	// fadeOut is non-nil once a scheduled stop has begun ramping this
	// source to silence. The entry is detached once the ramp completes.
	fadeOut *param.Smoothed
}

// Mixer sums any number of sources into a single output stream, applies
// an ordered effect chain, and scales the result by a smoothed volume.
// It implements sonora.Source so it can be nested inside another Mixer
// as a sub-mixer, and workerpool.MixerProcessor so the worker pool can
// render it directly when it is being processed in parallel with its
// siblings.
type Mixer struct {
	id         sonora.MixerID
	channels   int
	sampleRate int

	mu      sync.RWMutex
	sources []sourceEntry
	nextSrc uint64
	fx      chain

	queue  *commandQueue
	volume param.Smoothed

	pool         *workerpool.Pool
	currentFrame int64
	exhausted    bool
}

// New creates a Mixer at the given channel count and sample rate. Pass
// a non-nil workerpool.Pool to let this mixer parallelize processing of
// its direct sub-mixer children; pass nil for a mixer that should
// always process its children sequentially (the common case for
// anything but the primary mixer).
func New(id sonora.MixerID, channels, sampleRate int, pool *workerpool.Pool) *Mixer {
	return &Mixer{
		id:         id,
		channels:   channels,
		sampleRate: sampleRate,
		queue:      newCommandQueue(),
		volume:     param.New(1.0, param.DefaultRampSamples),
		pool:       pool,
	}
}

// ID reports this mixer's graph identifier.
func (m *Mixer) ID() sonora.MixerID { return m.id }

func (m *Mixer) ChannelCount() int { return m.channels }
func (m *Mixer) SampleRate() int   { return m.sampleRate }

// IsExhausted reports true once the mixer has been explicitly marked
// exhausted (its owner is tearing it down); a mixer with no sources is
// not considered exhausted, since sources can be added to it later.
func (m *Mixer) IsExhausted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted
}

// MarkExhausted permanently silences the mixer.
func (m *Mixer) MarkExhausted() {
	m.mu.Lock()
	m.exhausted = true
	m.mu.Unlock()
}

// Weight implements sonora.Source: a mixer's cost to render is driven by
// how many sources it currently has to sum, so the worker pool can bin-
// pack sub-mixers by how much work each one actually represents rather
// than treating every sub-mixer as equally expensive.
func (m *Mixer) Weight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sources)
}

// Schedule enqueues cmd to run at sample frame atFrame (relative to this
// mixer's own frame counter); ProcessBlock splits the block there.
// Passing the mixer's current frame (see CurrentFrame) schedules it to
// take effect as soon as possible. It returns sonora.ErrQueueFull if the
// command queue is already at capacity.
func (m *Mixer) Schedule(atFrame int64, apply func(*Mixer)) error {
	return m.queue.Enqueue(Command{AtFrame: atFrame, Apply: apply})
}

// scheduleCritical enqueues apply the same way Schedule does, except it
// force-pushes rather than failing when the queue is full: used for
// safety-critical commands (stopping or removing a source) that must
// never be silently dropped by a caller losing a race against queue
// pressure.
func (m *Mixer) scheduleCritical(atFrame int64, apply func(*Mixer)) {
	m.queue.ForcePush(Command{AtFrame: atFrame, Apply: apply})
}

// CurrentFrame reports the sample frame this mixer's next ProcessBlock
// call will start at.
func (m *Mixer) CurrentFrame() int64 { return m.currentFrame }

// AddSource schedules src to be added as an ordinary (non-submixer)
// input at the next processing block. It returns sonora.ErrQueueFull if
// the mixer's command queue is already at capacity.
func (m *Mixer) AddSource(src sonora.Source) (sonora.SourceID, error) {
	return m.AddSourceAt(m.currentFrame, src)
}

// AddSourceAt schedules src to be added as an ordinary input once the
// mixer's cursor reaches atFrame, giving callers sample-accurate
// control over when a source starts emitting. Use CurrentFrame for "as
// soon as possible". It returns sonora.ErrQueueFull if the mixer's
// command queue is already at capacity.
func (m *Mixer) AddSourceAt(atFrame int64, src sonora.Source) (sonora.SourceID, error) {
	id := sonora.NewSourceID()
	err := m.Schedule(atFrame, func(mx *Mixer) {
		mx.mu.Lock()
		defer mx.mu.Unlock()
		mx.sources = append(mx.sources, sourceEntry{id: id, src: src})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddSubmixer schedules child to be added as a sub-mixer input: a
// source whose processing may be dispatched to the worker pool in
// parallel with its siblings. It returns sonora.ErrQueueFull if the
// mixer's command queue is already at capacity.
func (m *Mixer) AddSubmixer(child *Mixer) (sonora.SourceID, error) {
	id := sonora.NewSourceID()
	err := m.Schedule(m.currentFrame, func(mx *Mixer) {
		mx.mu.Lock()
		defer mx.mu.Unlock()
		mx.sources = append(mx.sources, sourceEntry{id: id, src: child, isSubmixer: true})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RemoveSource schedules the source identified by id for removal, with
// the engine's default 50ms fade-out.
func (m *Mixer) RemoveSource(id sonora.SourceID) {
	m.RemoveSourceAt(m.currentFrame, id)
}

// RemoveSourceAt schedules the source identified by id for removal once
// the mixer's cursor reaches atFrame, for a sample-accurate scheduled
// stop. The source is not detached immediately: its output is ramped to
// silence over the engine's default 50ms fade-out window first, so a
// scheduled stop never produces an audible click. Removal is safety-
// critical and force-pushes past a full command queue rather than
// failing.
func (m *Mixer) RemoveSourceAt(atFrame int64, id sonora.SourceID) {
	m.RemoveSourceAtWithFade(atFrame, id, defaultFadeOutSeconds)
}

// RemoveSourceAtWithFade is RemoveSourceAt with an explicit fade-out
// duration in seconds (0 for an immediate hard stop).
func (m *Mixer) RemoveSourceAtWithFade(atFrame int64, id sonora.SourceID, fadeSeconds float64) {
	m.scheduleCritical(atFrame, func(mx *Mixer) {
		mx.mu.Lock()
		defer mx.mu.Unlock()
		for i := range mx.sources {
			if mx.sources[i].id == id {
				mx.beginFadeOutLocked(&mx.sources[i], fadeSeconds)
				return
			}
		}
	})
}

// beginFadeOutLocked starts ramping e's output to silence over
// fadeSeconds. Callers must hold m.mu. A fade already in progress is
// left alone rather than restarted.
func (m *Mixer) beginFadeOutLocked(e *sourceEntry, fadeSeconds float64) {
	if e.fadeOut != nil {
		return
	}
	frames := int(fadeSeconds * float64(m.sampleRate))
	if frames < 1 {
		frames = 1
	}
	ramp := param.New(1.0, frames)
	ramp.SetTarget(0)
	e.fadeOut = &ramp
}

// SetVolume schedules a smoothed ramp to the given linear volume. It
// returns sonora.ErrQueueFull if the mixer's command queue is already
// at capacity.
func (m *Mixer) SetVolume(volume float64) error {
	return m.Schedule(m.currentFrame, func(mx *Mixer) { mx.volume.SetTarget(volume) })
}

// AddEffect schedules e to be appended to the effect chain and returns
// its id, usable with RemoveEffect/MoveEffect. It returns
// sonora.ErrQueueFull if the mixer's command queue is already at
// capacity.
func (m *Mixer) AddEffect(e Effect) (sonora.EffectID, error) {
	id := sonora.NewEffectID()
	err := m.Schedule(m.currentFrame, func(mx *Mixer) { mx.fx.add(id, e) })
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RemoveEffect schedules removal of the effect chain member with the
// given id. Removal is safety-critical and force-pushes past a full
// command queue rather than failing.
func (m *Mixer) RemoveEffect(id sonora.EffectID) {
	m.scheduleCritical(m.currentFrame, func(mx *Mixer) { mx.fx.remove(id) })
}

// MoveEffect schedules the effect chain member with the given id to a
// new position in the chain. It returns sonora.ErrQueueFull if the
// mixer's command queue is already at capacity.
func (m *Mixer) MoveEffect(id sonora.EffectID, newIndex int) error {
	return m.Schedule(m.currentFrame, func(mx *Mixer) { mx.fx.move(id, newIndex) })
}

// RemoveAllEffects schedules the entire effect chain to be cleared.
// Removal is safety-critical and force-pushes past a full command queue
// rather than failing.
func (m *Mixer) RemoveAllEffects() {
	m.scheduleCritical(m.currentFrame, func(mx *Mixer) { mx.fx.removeAll() })
}

// RemoveAllSources schedules every source (including sub-mixers) to be
// detached immediately, with no fade-out (a full stop, not a single
// scheduled one, is assumed to want silence right away). Removal is
// safety-critical and force-pushes past a full command queue rather
// than failing.
func (m *Mixer) RemoveAllSources() {
	m.scheduleCritical(m.currentFrame, func(mx *Mixer) {
		mx.mu.Lock()
		defer mx.mu.Unlock()
		mx.sources = mx.sources[:0]
	})
}

func (m *Mixer) applyDueCommands(frames int64) {
	// A zero-frame block (write(&mut [], t)) still drains commands due
	// at or before the current cursor: max(frames, 1) keeps the usual
	// exclusive-upper-bound block math for every real block, while
	// ensuring a zero-length call doesn't skip "as soon as possible"
	// commands scheduled for right now just because there's no frame
	// range to fold them into.
	span := frames
	if span < 1 {
		span = 1
	}
	for _, cmd := range m.queue.drainUpTo(m.currentFrame + span) {
		cmd.Apply(m)
	}
}

// ProcessBlock implements workerpool.MixerProcessor and is the core
// rendering routine: it drains due commands, mixes every source
// (dispatching sub-mixer children to the worker pool when that is
// worthwhile), runs the effect chain, and applies the mixer's smoothed
// volume, writing into output (interleaved, channels channels).
func (m *Mixer) ProcessBlock(output []float32, channels, sampleRate int, t sonora.SourceTime) (bool, error) {
	frames := len(output) / channels
	m.queue.lock()
	split := int64(frames)
	for _, cmd := range m.queue.pending {
		if cmd.AtFrame > m.currentFrame && cmd.AtFrame-m.currentFrame < split {
			split = cmd.AtFrame - m.currentFrame
		}
	}
	m.queue.unlock()
	if split < int64(frames) {
		first, err := m.ProcessBlock(output[:int(split)*channels], channels, sampleRate, t)
		if err != nil {
			return false, err
		}
		rest, err := m.ProcessBlock(output[int(split)*channels:], channels, sampleRate, t.Add(split, sampleRate))
		return first || rest, err
	}
	m.applyDueCommands(int64(frames))

	for i := range output {
		output[i] = 0
	}

	m.mu.RLock()
	sources := make([]sourceEntry, len(m.sources))
	copy(sources, m.sources)
	m.mu.RUnlock()

	audible, err := m.mixSources(sources, output, channels, sampleRate, t)
	if err != nil {
		return false, err
	}

	if err := m.fx.process(output, channels, sampleRate); err != nil {
		return false, fmt.Errorf("mixer: effect chain: %w", err)
	}

	for f := 0; f < frames; f++ {
		g := float32(m.volume.Next())
		base := f * channels
		for c := 0; c < channels; c++ {
			output[base+c] *= g
		}
	}

	m.currentFrame += int64(frames)
	m.pruneExhausted()
	return audible, nil
}

func (m *Mixer) mixSources(sources []sourceEntry, output []float32, channels, sampleRate int, t sonora.SourceTime) (bool, error) {
	submixerCount := 0
	for _, e := range sources {
		if e.isSubmixer {
			submixerCount++
		}
	}

	audible := false
	if m.pool != nil && m.pool.ShouldUseConcurrentProcessing(submixerCount) {
		var err error
		audible, err = m.mixConcurrently(sources, output, channels, sampleRate, t)
		if err != nil {
			return false, err
		}
	} else {
		for i := range sources {
			a, err := m.mixOne(&sources[i], output, channels, sampleRate, t)
			if err != nil {
				return false, err
			}
			audible = audible || a
		}
	}
	return audible, nil
}

func (m *Mixer) mixOne(e *sourceEntry, output []float32, channels, sampleRate int, t sonora.SourceTime) (bool, error) {
	if cap(e.scratch) < len(output) {
		e.scratch = make([]float32, len(output))
	}
	scratch := e.scratch[:len(output)]
	for i := range scratch {
		scratch[i] = 0
	}

	n, err := e.src.Write(scratch, t)
	if err != nil {
		return false, fmt.Errorf("mixer: source write: %w", err)
	}
	audible := false
	for f := 0; f < n; f++ {
		gain := float32(1.0)
		if e.fadeOut != nil {
			gain = float32(e.fadeOut.Next())
		}
		base := f * channels
		for c := 0; c < channels; c++ {
			v := scratch[base+c] * gain
			if v != 0 {
				audible = true
			}
			output[base+c] += v
		}
	}
	return audible, nil
}

// mixConcurrently first mixes ordinary (non-submixer) sources on the
// calling goroutine, then dispatches every sub-mixer child to the worker
// pool and sums each sub-mixer's output into output once the pool
// reports back.
func (m *Mixer) mixConcurrently(sources []sourceEntry, output []float32, channels, sampleRate int, t sonora.SourceTime) (bool, error) {
	var tasks []workerpool.Task
	taskEntries := make([]*sourceEntry, 0, len(sources))

	audible := false
	for i := range sources {
		e := &sources[i]
		if !e.isSubmixer {
			a, err := m.mixOne(e, output, channels, sampleRate, t)
			if err != nil {
				return false, err
			}
			audible = audible || a
			continue
		}
		if cap(e.scratch) < len(output) {
			e.scratch = make([]float32, len(output))
		}
		proc, ok := e.src.(workerpool.MixerProcessor)
		if !ok {
			a, err := m.mixOne(e, output, channels, sampleRate, t)
			if err != nil {
				return false, err
			}
			audible = audible || a
			continue
		}
		tasks = append(tasks, workerpool.Task{
			Index:     len(tasks),
			Weight:    float64(e.src.Weight()),
			Proc:      proc,
			Output:    e.scratch[:len(output)],
			Channels:  channels,
			SampleRat: sampleRate,
		})
		taskEntries = append(taskEntries, e)
	}

	if len(tasks) == 0 {
		return audible, nil
	}

	for _, task := range tasks {
		for i := range task.Output {
			task.Output[i] = 0
		}
	}

	results, err := m.pool.Process(tasks, t)
	if err != nil {
		return false, fmt.Errorf("mixer: worker pool: %w", err)
	}
	frames := len(output) / channels
	for _, r := range results {
		e := taskEntries[r.Index]
		out := e.scratch
		for f := 0; f < frames; f++ {
			gain := float32(1.0)
			if e.fadeOut != nil {
				gain = float32(e.fadeOut.Next())
			}
			base := f * channels
			for c := 0; c < channels; c++ {
				v := out[base+c] * gain
				if v != 0 {
					audible = true
				}
				output[base+c] += v
			}
		}
	}
	return audible, nil
}

func (m *Mixer) pruneExhausted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sources {
		if e.fadeOut != nil && !e.fadeOut.IsRamping() {
			continue
		}
		if e.src.IsExhausted() {
			continue
		}
		m.sources[n] = e
		n++
	}
	m.sources = m.sources[:n]
}

// Write implements sonora.Source by delegating to ProcessBlock using
// this mixer's own channel count and sample rate, so a Mixer can be
// used anywhere a plain sonora.Source is expected (wrapped in an
// Amplified/Panned/Guarded adapter, for instance).
func (m *Mixer) Write(out []float32, t sonora.SourceTime) (int, error) {
	_, err := m.ProcessBlock(out, m.channels, m.sampleRate, t)
	if err != nil {
		return 0, err
	}
	return len(out) / m.channels, nil
}
