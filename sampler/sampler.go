// Package sampler implements the polyphonic granular sampler voice
// engine: a small pool of voices, each an AHDSR-enveloped grain cloud
// driven by its own modulation matrix, exposed as a single sonora.Source
// so it can be added to a mixer like any other producer.
package sampler

import (
	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/envelope"
	"github.com/intuitionamiga/sonora/granular"
	"github.com/intuitionamiga/sonora/modulation"
)

// voice is one polyphonic slot: an envelope gating a grain pool, with
// its own modulation matrix for LFO/envelope/velocity/keytrack routing.
type voice struct {
	id          int
	note        int
	active      bool
	env         envelope.Envelope
	pool        *granular.Pool
	matrix      *modulation.Matrix
	velocity    *modulation.Velocity
	keytrack    *modulation.Keytrack
	blockSize   int
	sizeMod     [modulation.BlockSize]float64
	densityMod  [modulation.BlockSize]float64
	variMod     [modulation.BlockSize]float64
	sprayMod    [modulation.BlockSize]float64
	spreadMod   [modulation.BlockSize]float64
	positionMod [modulation.BlockSize]float64
	speedMod    [modulation.BlockSize]float64
	envScratch  [modulation.BlockSize]float64
	voiceBuf    []float32

	// activation orders voices by trigger time (lower is older), used to
	// pick the oldest active voice when stealing.
	activation uint64
	// releaseStartFrame is the sampler's framesProcessed value at the
	// moment this voice entered its release stage, or -1 while the voice
	// has never been released since its last NoteOn.
	releaseStartFrame int64
}

// Sampler is a fixed-voice-count granular sampler. It satisfies
// sonora.Source so it can be wired directly into a mixer.
type Sampler struct {
	voices         []*voice
	envParams      *envelope.Parameters
	poolParams     granular.Parameters
	sampleRate     int
	outputChannels int
	sampleBuffer   []float32
	bufferChannels int

	nextActivation  uint64
	framesProcessed int64
}

// New creates a Sampler with the given polyphony, sample rate and
// output channel count. Call SetSampleBuffer before playing any notes.
func New(voiceCount, sampleRate, outputChannels int) *Sampler {
	s := &Sampler{
		envParams:      envelope.New(sampleRate),
		poolParams:     granular.DefaultParameters(),
		sampleRate:     sampleRate,
		outputChannels: outputChannels,
	}
	s.voices = make([]*voice, voiceCount)
	for i := range s.voices {
		v := &voice{id: i, pool: granular.NewPool(8, sampleRate), matrix: modulation.New(), releaseStartFrame: -1}
		lfo := modulation.NewLFO(sampleRate)
		v.matrix.AddLFOSlot(lfo)
		v.velocity = &modulation.Velocity{}
		v.matrix.SetVelocitySlot(v.velocity)
		v.keytrack = modulation.NewKeytrack(60)
		v.matrix.SetKeytrackingSlot(v.keytrack)
		s.voices[i] = v
	}
	return s
}

// EnvelopeParameters exposes the shared AHDSR shape every voice plays
// with, for callers that want to tune attack/hold/decay/sustain/release.
func (s *Sampler) EnvelopeParameters() *envelope.Parameters { return s.envParams }

// GranularParameters exposes the shared grain-pool parameters every
// voice reads from.
func (s *Sampler) GranularParameters() *granular.Parameters { return &s.poolParams }

// Modulation returns the per-voice modulation matrix for voiceID, or
// nil if voiceID is out of range.
func (s *Sampler) Modulation(voiceID int) *modulation.Matrix {
	if voiceID < 0 || voiceID >= len(s.voices) {
		return nil
	}
	return s.voices[voiceID].matrix
}

// SetSampleBuffer installs the source material every voice's grain pool
// reads from.
func (s *Sampler) SetSampleBuffer(samples []float32, channels int) {
	s.sampleBuffer = samples
	s.bufferChannels = channels
	for _, v := range s.voices {
		v.pool.SetSampleBuffer(samples, channels)
	}
}

// nextVoiceIndex returns the index of an idle voice if one exists;
// otherwise it picks the best candidate to steal, preferring (in order)
// the voice that has been releasing longest, then the oldest-triggered
// still-active voice. With at least one voice configured this always
// returns a valid index.
func (s *Sampler) nextVoiceIndex() int {
	for i, v := range s.voices {
		if !v.active {
			return i
		}
	}

	candidate := 0
	earliestRelease := int64(-1)
	haveRelease := false
	oldestActivation := uint64(0)
	haveActive := false
	for i, v := range s.voices {
		if v.env.Stage() == envelope.StageRelease {
			if !haveRelease || v.releaseStartFrame < earliestRelease {
				earliestRelease = v.releaseStartFrame
				haveRelease = true
				haveActive = false // a releasing voice always outranks a merely-active one
				candidate = i
			}
			continue
		}
		if haveRelease {
			continue
		}
		if !haveActive || v.activation < oldestActivation {
			oldestActivation = v.activation
			haveActive = true
			candidate = i
		}
	}
	return candidate
}

// NoteOn triggers a new voice for note at velocity in [0,1]. When every
// voice is busy it steals one (see nextVoiceIndex) rather than refusing
// the new note. It returns the voice ID.
func (s *Sampler) NoteOn(note int, velocity float64) int {
	if len(s.voices) == 0 {
		return -1
	}
	idx := s.nextVoiceIndex()
	v := s.voices[idx]
	v.active = true
	v.note = note
	v.releaseStartFrame = -1
	v.activation = s.nextActivation
	s.nextActivation++
	v.env.NoteOn(s.envParams, velocity)
	v.pool.Reset()
	v.pool.Start()
	v.matrix.NoteOn(note, velocity)
	return idx
}

// NoteOff releases the voice currently playing note, if any.
func (s *Sampler) NoteOff(note int) {
	for _, v := range s.voices {
		if v.active && v.note == note {
			v.env.NoteOff(s.envParams)
			v.pool.Stop()
			v.matrix.NoteOff()
			v.releaseStartFrame = s.framesProcessed
		}
	}
}

// StopAll immediately silences every voice.
func (s *Sampler) StopAll() {
	for _, v := range s.voices {
		v.active = false
		v.env.Reset()
		v.pool.Reset()
	}
}

// ChannelCount implements sonora.Source.
func (s *Sampler) ChannelCount() int { return s.outputChannels }

// SampleRate implements sonora.Source.
func (s *Sampler) SampleRate() int { return s.sampleRate }

// IsExhausted implements sonora.Source: the sampler itself never
// permanently exhausts (new notes can always arrive), so it always
// reports false; individual voices exhaust and free themselves.
func (s *Sampler) IsExhausted() bool { return false }

// Weight implements sonora.Source: the sampler's rendering cost scales
// with how many voices are currently active, so the worker pool can
// budget a heavily polyphonic sampler differently from a mostly-idle
// one. At least one unit of work is always reported while the sampler
// might still receive notes.
func (s *Sampler) Weight() int {
	n := 0
	for _, v := range s.voices {
		if v.active {
			n++
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Write implements sonora.Source, mixing every active voice's
// envelope-scaled grain pool output into out.
func (s *Sampler) Write(out []float32, t sonora.SourceTime) (int, error) {
	for i := range out {
		out[i] = 0
	}
	frames := len(out) / s.outputChannels
	if frames == 0 {
		return 0, nil
	}

	for _, v := range s.voices {
		if !v.active {
			continue
		}
		s.renderVoice(v, out, frames)
		if v.pool.IsExhausted() && v.env.Stage() == envelope.StageIdle {
			v.active = false
		}
	}
	s.framesProcessed += int64(frames)
	return frames, nil
}

func (s *Sampler) renderVoice(v *voice, out []float32, frames int) {
	needed := frames * s.outputChannels
	if cap(v.voiceBuf) < needed {
		v.voiceBuf = make([]float32, needed)
	}
	voiceOut := v.voiceBuf[:needed]
	for i := range voiceOut {
		voiceOut[i] = 0
	}

	remaining := frames
	offset := 0
	for remaining > 0 {
		n := remaining
		if n > modulation.BlockSize {
			n = modulation.BlockSize
		}
		v.matrix.Process(n)

		v.env.Process(s.envParams, v.envScratch[:n])

		v.matrix.Output(sonora.ParamGrainPos, v.positionMod[:n])
		v.matrix.Output(sonora.ParamPan, v.spreadMod[:n])
		v.matrix.Output(sonora.ParamGrainDens, v.densityMod[:n])

		mod := granular.Modulation{
			Position:  v.positionMod[:n],
			PanSpread: v.spreadMod[:n],
			Density:   v.densityMod[:n],
		}

		block := voiceOut[offset*s.outputChannels : (offset+n)*s.outputChannels]
		v.pool.Process(block, s.outputChannels, s.poolParams, mod)

		for i := 0; i < n; i++ {
			gain := float32(v.envScratch[i])
			base := i * s.outputChannels
			for c := 0; c < s.outputChannels; c++ {
				block[base+c] *= gain
			}
		}

		offset += n
		remaining -= n
	}

	for i := range voiceOut {
		out[i] += voiceOut[i]
	}
}
