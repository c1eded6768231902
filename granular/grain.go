package granular

// Grain is a single playing grain: a position and increment into the
// shared sample buffer, paired with a window phase and increment that
// run independently (the window always completes in exactly
// SamplesRemaining samples, regardless of playback speed, so a grain's
// envelope shape is never distorted by time-stretching).
type Grain struct {
	Active           bool
	Volume           float64
	Panning          float64 // [-1,1]
	Position         float64 // fractional frame index into the sample buffer
	Increment        float64 // frames per output sample; negative plays backward
	SamplesRemaining int
	WindowPhase      float64
	WindowIncrement  float64
	WindowMode       WindowMode
}

// Activate (re)starts g as a new grain.
//
// sizeSamples is the grain's total duration in output samples;
// startPosition is its starting frame index into the sample buffer;
// speed is the playback rate (1.0 = native); reverse plays the grain
// backward through the buffer.
func (g *Grain) Activate(startPosition float64, sizeSamples int, speed float64, reverse bool, volume, panning float64, windowMode WindowMode) {
	if sizeSamples < 2 {
		sizeSamples = 2
	}
	g.Active = true
	g.Volume = volume
	g.Panning = panning
	g.Position = startPosition
	g.Increment = speed
	if reverse {
		g.Increment = -speed
	}
	g.SamplesRemaining = sizeSamples
	g.WindowPhase = 0
	g.WindowIncrement = 1.0 / float64(sizeSamples)
	g.WindowMode = windowMode
}

// Output is what Process reports for one sample of this grain.
type Output struct {
	Envelope float32
	Panning  float64
	Position float64
}

// Process advances the grain by one sample, returning its current
// windowed envelope, panning and buffer read position. It clears
// g.Active the instant the window completes.
func (g *Grain) Process() Output {
	out := Output{
		Envelope: Sample(g.WindowMode, g.WindowPhase) * float32(g.Volume),
		Panning:  g.Panning,
		Position: g.Position,
	}

	g.Position += g.Increment
	g.WindowPhase += g.WindowIncrement
	g.SamplesRemaining--
	if g.SamplesRemaining <= 0 || g.WindowPhase >= 1.0 {
		g.Active = false
	}
	return out
}
