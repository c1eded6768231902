package granular

import (
	"math"
	"math/rand"
)

// OverlapMode selects how new grains are triggered relative to the
// ones already playing.
type OverlapMode int

const (
	// OverlapCloud triggers new grains at a rate derived purely from
	// Density, independent of whether other grains are still playing;
	// grains overlap freely, producing a dense, textured cloud.
	OverlapCloud OverlapMode = iota
	// OverlapSequential triggers the next grain only once the
	// currently-playing "primary" grain has reached its window mode's
	// crossfade point, producing a smoother, more granular-delay-like
	// texture with at most two grains overlapping at a time.
	OverlapSequential
)

// PlayheadMode selects how a grain's starting position in the sample
// buffer is derived.
type PlayheadMode int

const (
	// PlayheadManual reads ManualPosition (optionally modulated) as a
	// fixed normalized [0,1] point in the buffer every trigger.
	PlayheadManual PlayheadMode = iota
	// PlayheadPlayThrough advances a running playhead across the
	// buffer over time at PlayheadSpeed, the way a tape or scrub
	// position would.
	PlayheadPlayThrough
)

// Direction selects which way a grain plays through the buffer.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
	DirectionRandom
)

// Parameters holds the per-block-constant controls the grain pool reads
// every time it considers triggering or advancing a grain. All of these
// are in addition to the live per-sample Modulation below, which the
// caller supplies for the parameters that accept modulation.
type Parameters struct {
	Overlap       OverlapMode
	Window        WindowMode
	SizeMs        float64 // grain duration in milliseconds, before per-grain Variation scaling
	DensityHz     float64 // grains triggered per second in Cloud mode, [1,100]
	Spray         float64 // [0,1] randomizes each grain's start position, by up to ±2 seconds at 1
	Variation     float64 // [0,1] randomizes per-grain size/volume
	PanSpread     float64 // [0,1] randomizes each grain's pan around Panning
	Direction     Direction
	Playhead      PlayheadMode
	ManualPos     float64 // [0,1], used when Playhead == PlayheadManual
	PlayheadSpeed float64 // playhead rate multiplier (1.0 advances one buffer frame per output sample), used when Playhead == PlayheadPlayThrough
}

// DefaultParameters matches the engine's out-of-the-box grain
// character: a loose cloud of 100ms Triangle-windowed grains at 10Hz
// density with no randomization.
func DefaultParameters() Parameters {
	return Parameters{
		Overlap:       OverlapCloud,
		Window:        WindowTriangle,
		SizeMs:        100.0,
		DensityHz:     10.0,
		Direction:     DirectionForward,
		Playhead:      PlayheadManual,
		ManualPos:     0.5,
		PlayheadSpeed: 1.0,
	}
}

// Validate clamps Parameters into their documented ranges in place.
func (p *Parameters) Validate() {
	if p.SizeMs < 1 {
		p.SizeMs = 1
	}
	if p.DensityHz < 1 {
		p.DensityHz = 1
	}
	if p.DensityHz > 100 {
		p.DensityHz = 100
	}
	p.Variation = clamp01(p.Variation)
	p.PanSpread = clamp01(p.PanSpread)
	if p.ManualPos < 0 {
		p.ManualPos = 0
	}
	if p.ManualPos > 1 {
		p.ManualPos = 1
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Modulation carries the per-block modulated value for every parameter
// that accepts live modulation, as produced by the modulation matrix.
// A nil slice (or one shorter than the block) means "no modulation this
// block" for that parameter.
type Modulation struct {
	Size      []float64
	Density   []float64
	Variation []float64
	Spray     []float64
	PanSpread []float64
	Position  []float64
	Speed     []float64
}

func modAt(m []float64, i int, fallback float64) float64 {
	if i < len(m) {
		return fallback + m[i]
	}
	return fallback
}

// Pool is a fixed-capacity array of grains, their triggering logic, and
// the shared sample buffer they read from.
type Pool struct {
	grains       []Grain
	active       []int
	primary      int // index into grains of the most recent Sequential-mode grain, or -1
	sampleBuffer []float32
	channels     int
	loopStart    float64 // normalized [0,1), -1 if no loop
	loopEnd      float64
	triggerPhase float64 // accumulator in cycles, driving Cloud-mode triggering
	playhead     float64 // normalized [0,1) running position for PlayThrough mode
	speed        float64
	volume       float64
	panning      float64
	sampleRate   int
	rng          *rand.Rand
	playing      bool
}

// NewPool creates a Pool with room for poolSize simultaneously-active
// grains.
func NewPool(poolSize int, sampleRate int) *Pool {
	return &Pool{
		grains:     make([]Grain, poolSize),
		active:     make([]int, 0, poolSize),
		primary:    -1,
		sampleRate: sampleRate,
		speed:      1.0,
		volume:     1.0,
		loopStart:  -1,
		rng:        rand.New(rand.NewSource(1)),
	}
}

// SetSampleBuffer installs the source material grains read from,
// interleaved at the given channel count.
func (p *Pool) SetSampleBuffer(samples []float32, channels int) {
	p.sampleBuffer = samples
	if channels < 1 {
		channels = 1
	}
	p.channels = channels
}

// SetLoopRange restricts playhead advance and position folding to
// [start,end) (normalized [0,1)). Pass start<0 to disable looping.
func (p *Pool) SetLoopRange(start, end float64) {
	p.loopStart = start
	p.loopEnd = end
}

func (p *Pool) frameCount() int {
	if p.channels == 0 {
		return 0
	}
	return len(p.sampleBuffer) / p.channels
}

// IsExhausted reports whether the pool has stopped and has no grains
// left playing out their tails.
func (p *Pool) IsExhausted() bool { return !p.playing && len(p.active) == 0 }

// Start begins triggering new grains. In Cloud mode the first grain
// triggers on the very next sample rather than one density period later.
func (p *Pool) Start() {
	p.playing = true
	p.triggerPhase = 1.0
}

// Stop halts triggering of new grains; already-playing grains finish
// their natural envelope.
func (p *Pool) Stop() { p.playing = false }

// Reset immediately silences the pool, discarding all active grains.
func (p *Pool) Reset() {
	p.playing = false
	p.active = p.active[:0]
	p.primary = -1
	p.triggerPhase = 0
	p.playhead = 0
	for i := range p.grains {
		p.grains[i].Active = false
	}
}

func (p *Pool) SetSpeed(speed float64)     { p.speed = speed }
func (p *Pool) SetVolume(volume float64)   { p.volume = volume }
func (p *Pool) SetPanning(panning float64) { p.panning = panning }

// playbackPosition resolves the normalized [0,1) buffer position a new
// grain should start at, before spray is applied, honoring the
// configured playhead mode and loop range.
func (p *Pool) playbackPosition(params Parameters, positionMod float64) float64 {
	var base float64
	switch params.Playhead {
	case PlayheadPlayThrough:
		base = p.playhead
	default:
		base = params.ManualPos + positionMod
	}
	if p.loopStart >= 0 && p.loopEnd > p.loopStart {
		span := p.loopEnd - p.loopStart
		base = p.loopStart + remEuclid(base-p.loopStart, span)
	} else {
		base = remEuclid(base, 1.0)
	}
	return base
}

func remEuclid(v, modulus float64) float64 {
	r := v
	for r < 0 {
		r += modulus
	}
	for r >= modulus {
		r -= modulus
	}
	return r
}

// advancePlayhead moves the PlayThrough playhead forward by one sample
// at the modulated speed.
func (p *Pool) advancePlayhead(params Parameters, speed float64) {
	if params.Playhead != PlayheadPlayThrough {
		return
	}
	frames := p.frameCount()
	if frames == 0 {
		return
	}
	increment := speed / float64(frames)
	p.playhead += increment
	if p.loopStart >= 0 && p.loopEnd > p.loopStart {
		span := p.loopEnd - p.loopStart
		p.playhead = p.loopStart + remEuclid(p.playhead-p.loopStart, span)
	} else {
		p.playhead = remEuclid(p.playhead, 1.0)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p *Pool) updateTriggerPhase(densityHz float64) bool {
	p.triggerPhase += densityHz / float64(p.sampleRate)
	if p.triggerPhase >= 1.0 {
		p.triggerPhase -= 1.0
		return true
	}
	return false
}

func (p *Pool) freeSlot() int {
	for i := range p.grains {
		if !p.grains[i].Active {
			return i
		}
	}
	return -1
}

// tryTriggerGrain considers starting a new grain this sample, per the
// configured overlap mode, and activates one if conditions are met.
func (p *Pool) tryTriggerGrain(params Parameters, positionMod, spreadMod, sizeMod, variationMod, sprayMod, densityMod float64) {
	if !p.playing {
		return
	}

	shouldTrigger := false
	switch params.Overlap {
	case OverlapCloud:
		density := clamp(params.DensityHz*(1.0+densityMod), 1.0, 100.0)
		shouldTrigger = p.updateTriggerPhase(density)
	case OverlapSequential:
		if p.primary < 0 || !p.grains[p.primary].Active {
			shouldTrigger = true
		} else {
			crossfade := params.Window.SequentialCrossfadePoint()
			shouldTrigger = p.grains[p.primary].WindowPhase >= crossfade
		}
	}
	if !shouldTrigger {
		return
	}
	p.activateNewGrain(params, positionMod, spreadMod, sizeMod, variationMod, sprayMod)
}

func (p *Pool) activateNewGrain(params Parameters, positionMod, spreadMod, sizeMod, variationMod, sprayMod float64) {
	slot := p.freeSlot()
	if slot < 0 {
		return
	}

	frames := p.frameCount()
	if frames == 0 {
		return
	}
	fileDuration := float64(frames) / float64(p.sampleRate)

	variation := clamp01(params.Variation + variationMod)
	volumeScale := 1.0 - variation*p.rng.Float64()
	sizeScale := 1.0 - 0.75*variation + (1.0+2.0*variation-(1.0-0.75*variation))*p.rng.Float64()

	sizeMult := 1.0 + sizeMod
	grainSizeMs := clamp(params.SizeMs*sizeMult, 1.0, 1000.0)
	grainSize := int((grainSizeMs * sizeScale * float64(p.sampleRate)) / 1000.0)
	if grainSize < 2 {
		grainSize = 2
	}

	sprayAmount := clamp01(params.Spray + sprayMod)
	spraySeconds := sprayAmount * 4.0 * (p.rng.Float64() - 0.5)
	sprayVariation := 0.0
	if fileDuration > 0 {
		sprayVariation = spraySeconds / fileDuration
	}

	pos := p.playbackPosition(params, positionMod) + sprayVariation
	pos = remEuclid(pos, 1.0)
	startFrame := pos * float64(frames)

	panSpread := clamp01(params.PanSpread + spreadMod)
	pan := p.panning
	if panSpread > 0 {
		pan += panSpread * (p.rng.Float64()*2 - 1)
		if pan < -1 {
			pan = -1
		}
		if pan > 1 {
			pan = 1
		}
	}

	direction := params.Direction
	if direction == DirectionRandom {
		if p.rng.Float64() < 0.5 {
			direction = DirectionForward
		} else {
			direction = DirectionBackward
		}
	}

	p.grains[slot].Activate(startFrame, grainSize, p.speed, direction == DirectionBackward, p.volume*volumeScale, pan, params.Window)
	p.active = append(p.active, slot)
	if params.Overlap == OverlapSequential {
		p.primary = slot
	}
}

func (p *Pool) pruneInactive() {
	n := 0
	for _, idx := range p.active {
		if p.grains[idx].Active {
			p.active[n] = idx
			n++
		}
	}
	p.active = p.active[:n]
}

// sampleAtPosition reads the sample buffer at a fractional frame
// position via 4-point Catmull-Rom interpolation, wrapping around the
// buffer's ends so grains near a boundary don't click.
func (p *Pool) sampleAtPosition(position float64, channel int) float32 {
	frames := p.frameCount()
	if frames == 0 {
		return 0
	}
	i1 := int(position)
	frac := position - float64(i1)

	wrap := func(i int) int {
		for i < 0 {
			i += frames
		}
		for i >= frames {
			i -= frames
		}
		return i
	}

	i0 := wrap(i1 - 1)
	i1w := wrap(i1)
	i2 := wrap(i1 + 1)
	i3 := wrap(i1 + 2)

	at := func(i int) float64 {
		return float64(p.sampleBuffer[i*p.channels+channel])
	}
	y0, y1, y2, y3 := at(i0), at(i1w), at(i2), at(i3)

	a := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	b := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c := -0.5*y0 + 0.5*y2
	d := y1

	f := frac
	return float32(((a*f+b)*f+c)*f + d)
}

// Process renders frameCount frames into output (interleaved,
// outputChannels channels), mixing every active grain and triggering or
// pruning grains as needed. It returns true if any audio was produced.
func (p *Pool) Process(output []float32, outputChannels int, params Parameters, mod Modulation) bool {
	params.Validate()
	audible := false

	for f := 0; f < frameCount(output, outputChannels); f++ {
		positionMod := fieldAt(mod.Position, f)
		spreadMod := fieldAt(mod.PanSpread, f)
		sizeMod := fieldAt(mod.Size, f)
		variationMod := fieldAt(mod.Variation, f)
		sprayMod := fieldAt(mod.Spray, f)
		densityMod := fieldAt(mod.Density, f)
		speedMod := modAt(mod.Speed, f, 0)

		p.tryTriggerGrain(params, positionMod, spreadMod, sizeMod, variationMod, sprayMod, densityMod)
		p.advancePlayhead(params, params.PlayheadSpeed*(1.0+speedMod))

		var left, right float64
		for _, idx := range p.active {
			g := &p.grains[idx]
			out := g.Process()
			if !g.Active {
				continue
			}
			envelope := float64(out.Envelope)
			if outputChannels >= 2 {
				lg, rg := constantPowerPan(out.Panning)
				if p.channels >= 2 {
					left += float64(p.sampleAtPosition(out.Position, 0)) * envelope * lg
					right += float64(p.sampleAtPosition(out.Position, 1)) * envelope * rg
				} else {
					mono := float64(p.sampleAtPosition(out.Position, 0)) * envelope
					left += mono * lg
					right += mono * rg
				}
			} else {
				left += float64(p.sampleAtPosition(out.Position, 0)) * envelope
			}
			audible = true
		}

		base := f * outputChannels
		output[base] += float32(left)
		if outputChannels >= 2 {
			output[base+1] += float32(right)
		}
	}

	p.pruneInactive()
	return audible
}

func frameCount(buf []float32, channels int) int {
	if channels == 0 {
		return 0
	}
	return len(buf) / channels
}

func fieldAt(m []float64, i int) float64 {
	if i < len(m) {
		return m[i]
	}
	return 0
}

// constantPowerPan returns the left/right gain for a pan in [-1,1]
// using equal-power (sine/cosine) panning, so a centered source's
// perceived loudness matches a hard-panned one.
func constantPowerPan(pan float64) (left, right float64) {
	angle := (pan + 1.0) * 0.25 * math.Pi
	return math.Cos(angle), math.Sin(angle)
}
