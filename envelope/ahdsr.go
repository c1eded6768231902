// Package envelope implements the AHDSR (attack/hold/decay/sustain/release)
// envelope generator driving every granular sampler voice.
package envelope

import (
	"math"

	"github.com/intuitionamiga/sonora/param"
)

// Stage identifies where an Envelope is in its lifecycle.
type Stage int

const (
	StageIdle Stage = iota
	StageAttack
	StageHold
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAttack:
		return "attack"
	case StageHold:
		return "hold"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Silence is the output level below which the Release stage is
// considered complete and the envelope returns to Idle: -60dB.
const Silence = 0.001

// uninitializedSampleRate marks a Parameters value that has never had
// SetSampleRate called; per-sample rates computed against it are
// meaningless until it is set to something real.
const uninitializedSampleRate = 66666

// Parameters holds the stage timings (in seconds, except SustainLevel)
// and the derived per-sample rates used by Envelope.Run. Scaling values
// are in [-1,1] and bend each stage's ramp via param.ApplyScaling; zero
// means linear.
type Parameters struct {
	sampleRate int

	attackTime    float64
	attackScaling float64
	attackRate    float64

	holdTime    float64
	holdSamples int64

	decayTime    float64
	decayScaling float64
	decayRate    float64

	sustainLevel float64

	releaseTime    float64
	releaseScaling float64
	releaseRate    float64
}

// New creates Parameters at the given sample rate with the engine's
// default shape: 10ms attack, 1s hold, 500ms decay, sustain at 0.75,
// 1s release, no scaling on any stage.
func New(sampleRate int) *Parameters {
	p := &Parameters{sampleRate: uninitializedSampleRate}
	p.SetSampleRate(sampleRate)
	p.SetAttackTime(0.010)
	p.SetHoldTime(1.0)
	p.SetDecayTime(0.5)
	p.SetSustainLevel(0.75)
	p.SetReleaseTime(1.0)
	return p
}

// SetSampleRate updates the sample rate and recomputes every derived
// per-sample rate from the stored stage times.
func (p *Parameters) SetSampleRate(sampleRate int) {
	if sampleRate < 1 {
		sampleRate = uninitializedSampleRate
	}
	p.sampleRate = sampleRate
	p.SetAttackTime(p.attackTime)
	p.SetHoldTime(p.holdTime)
	p.SetDecayTime(p.decayTime)
	p.SetReleaseTime(p.releaseTime)
}

func rateFor(timeSecs float64, span float64, sampleRate int) float64 {
	if timeSecs <= 0 {
		return math.MaxFloat32
	}
	return span / (timeSecs * float64(sampleRate))
}

// SetAttackTime sets the attack stage length in seconds and recomputes
// its per-sample increment. A zero time makes attack complete within
// one Run call.
func (p *Parameters) SetAttackTime(secs float64) {
	if secs < 0 {
		secs = 0
	}
	p.attackTime = secs
	p.attackRate = rateFor(secs, 1.0, p.sampleRate)
}

// SetAttackScaling sets the attack stage's curve bend in [-1,1].
func (p *Parameters) SetAttackScaling(scaling float64) { p.attackScaling = clamp(scaling, -1, 1) }

// SetHoldTime sets how long, in seconds, the envelope stays at full
// level after attack completes before decay begins.
func (p *Parameters) SetHoldTime(secs float64) {
	if secs < 0 {
		secs = 0
	}
	p.holdTime = secs
	p.holdSamples = int64(secs * float64(p.sampleRate))
}

// SetDecayTime sets the decay stage length in seconds.
func (p *Parameters) SetDecayTime(secs float64) {
	if secs < 0 {
		secs = 0
	}
	p.decayTime = secs
	p.decayRate = rateFor(secs, 1.0-p.sustainLevel, p.sampleRate)
}

// SetDecayScaling sets the decay stage's curve bend in [-1,1].
func (p *Parameters) SetDecayScaling(scaling float64) { p.decayScaling = clamp(scaling, -1, 1) }

// SetSustainLevel sets the sustain plateau level in [0,1] and
// recomputes the decay rate against the new target.
func (p *Parameters) SetSustainLevel(level float64) {
	p.sustainLevel = clamp(level, 0, 1)
	p.decayRate = rateFor(p.decayTime, 1.0-p.sustainLevel, p.sampleRate)
}

// SetReleaseTime sets the release stage length in seconds.
func (p *Parameters) SetReleaseTime(secs float64) {
	if secs < 0 {
		secs = 0
	}
	p.releaseTime = secs
	p.releaseRate = rateFor(secs, 1.0, p.sampleRate)
}

// SetReleaseScaling sets the release stage's curve bend in [-1,1].
func (p *Parameters) SetReleaseScaling(scaling float64) { p.releaseScaling = clamp(scaling, -1, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Envelope is a single voice's AHDSR state machine.
type Envelope struct {
	stage              Stage
	targetVolume       float64
	holdSamplesLeft    int64
	releaseStartOutput float64
	output             float64
}

// Stage reports the envelope's current stage.
func (e *Envelope) Stage() Stage { return e.stage }

// Output reports the envelope's current scalar output in [0,1].
func (e *Envelope) Output() float64 { return e.output }

// NoteOn starts (or restarts) the envelope at the given note volume in
// [0,1]. If the attack rate is effectively instantaneous (zero attack
// time), the envelope skips straight to Hold (or Decay, if hold is also
// zero) at full output, matching how a zero-length stage is defined to
// behave: skipped, not run-and-immediately-complete.
func (e *Envelope) NoteOn(p *Parameters, volume float64) {
	e.targetVolume = clamp(volume, 0, 1)
	if p.attackRate >= math.MaxFloat32 {
		e.output = e.targetVolume
		e.enterHoldOrDecay(p)
		return
	}
	e.stage = StageAttack
	e.output = 0
}

func (e *Envelope) enterHoldOrDecay(p *Parameters) {
	if p.holdSamples > 0 {
		e.stage = StageHold
		e.holdSamplesLeft = p.holdSamples
		return
	}
	e.stage = StageDecay
}

// NoteOff begins the release stage from whatever output level the
// envelope currently holds. If release time is zero, or the current
// output is already at/below Silence, the envelope goes directly to
// Idle rather than running a one-sample release.
func (e *Envelope) NoteOff(p *Parameters) {
	e.releaseStartOutput = e.output
	if p.releaseTime <= 0 || e.releaseStartOutput <= Silence {
		e.stage = StageIdle
		e.output = 0
		return
	}
	e.stage = StageRelease
}

// Reset immediately returns the envelope to Idle with zero output,
// discarding whatever stage it was in.
func (e *Envelope) Reset() {
	e.stage = StageIdle
	e.output = 0
	e.holdSamplesLeft = 0
	e.releaseStartOutput = 0
}

// Run advances the envelope by one sample and returns the new output.
// Scaling is applied to Attack, Decay and Release only, bending the
// otherwise-linear ramp by the stage's configured scaling parameter.
func (e *Envelope) Run(p *Parameters) float64 {
	switch e.stage {
	case StageAttack:
		e.output += p.attackRate
		if e.output >= e.targetVolume {
			e.output = e.targetVolume
			e.enterHoldOrDecay(p)
		}
	case StageHold:
		e.holdSamplesLeft--
		if e.holdSamplesLeft <= 0 {
			e.stage = StageDecay
		}
	case StageDecay:
		if p.sustainLevel < e.targetVolume {
			e.output -= p.decayRate
			if e.output <= p.sustainLevel {
				e.output = p.sustainLevel
				e.stage = StageSustain
			}
		} else {
			e.output += p.decayRate
			if e.output >= p.sustainLevel {
				e.output = p.sustainLevel
				e.stage = StageSustain
			}
		}
	case StageSustain:
		// no-op: output holds at the sustain level until NoteOff.
	case StageRelease:
		e.output -= e.releaseStartOutput * p.releaseRate
		if e.output <= Silence {
			e.output = 0
			e.stage = StageIdle
		}
	case StageIdle:
		// no-op.
	}

	switch e.stage {
	case StageAttack:
		if e.targetVolume > 0 {
			progress := e.output / e.targetVolume
			e.output = param.ApplyScaling(progress, p.attackScaling) * e.targetVolume
		}
	case StageDecay:
		span := e.targetVolume - p.sustainLevel
		if span != 0 {
			progress := (e.output - p.sustainLevel) / span
			e.output = p.sustainLevel + param.ApplyScaling(progress, p.decayScaling)*span
		}
	case StageRelease:
		if e.releaseStartOutput != 0 {
			progress := e.output / e.releaseStartOutput
			e.output = param.ApplyScaling(progress, p.releaseScaling) * e.releaseStartOutput
		}
	}

	return e.output
}

// Process fills buf with one envelope sample per element, taking fast
// paths for the Idle and Sustain stages (a constant fill, no per-sample
// stage-machine work) since those are the stages a voice spends most of
// its life in.
func (e *Envelope) Process(p *Parameters, buf []float64) {
	switch e.stage {
	case StageIdle:
		for i := range buf {
			buf[i] = 0
		}
		return
	case StageSustain:
		v := e.output
		for i := range buf {
			buf[i] = v
		}
		return
	}
	for i := range buf {
		buf[i] = e.Run(p)
	}
}
