package modulation

import "math"

// Waveform selects the shape an LFO oscillates in.
type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformTriangle
	WaveformSquare
	WaveformSawUp
	WaveformSawDown
)

// LFO is a free-running low-frequency oscillator producing bipolar
// [-1,1] output, the modulation matrix's native LFO signal shape.
type LFO struct {
	waveform   Waveform
	rate       float64 // Hz
	phase      float64 // [0,1)
	sampleRate int
}

// NewLFO creates an LFO at the given sample rate, defaulting to a 1Hz
// sine.
func NewLFO(sampleRate int) *LFO {
	return &LFO{waveform: WaveformSine, rate: 1.0, sampleRate: sampleRate}
}

// SetRate sets the oscillation rate in Hz.
func (l *LFO) SetRate(hz float64) {
	if hz < 0 {
		hz = 0
	}
	l.rate = hz
}

// SetWaveform sets the oscillator shape.
func (l *LFO) SetWaveform(w Waveform) { l.waveform = w }

// Reset returns the LFO to phase zero, called on NoteOn so every new
// voice's LFO starts from a consistent point in its cycle.
func (l *LFO) Reset() { l.phase = 0 }

func (l *LFO) sample() float64 {
	var v float64
	switch l.waveform {
	case WaveformSine:
		v = math.Sin(2 * math.Pi * l.phase)
	case WaveformTriangle:
		v = 4*math.Abs(l.phase-0.5) - 1
	case WaveformSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveformSawUp:
		v = 2*l.phase - 1
	case WaveformSawDown:
		v = 1 - 2*l.phase
	}
	l.phase += l.rate / float64(l.sampleRate)
	if l.phase >= 1.0 {
		l.phase -= math.Floor(l.phase)
	}
	return v
}

// Process implements Processor, filling buf with bipolar LFO output.
func (l *LFO) Process(buf []float64) {
	for i := range buf {
		buf[i] = l.sample()
	}
}

// Velocity is a unipolar modulation source latched once per note-on to
// the triggering velocity in [0,1].
type Velocity struct {
	value float64
}

// SetVelocity latches a new note velocity.
func (v *Velocity) SetVelocity(value float64) { v.value = value }

// Process implements Processor, filling buf with the constant latched
// velocity.
func (v *Velocity) Process(buf []float64) {
	for i := range buf {
		buf[i] = v.value
	}
}

// Keytrack is a unipolar modulation source derived from the triggering
// MIDI note number, normalized against a center note so notes above
// center produce values above 0.5 and vice-versa.
type Keytrack struct {
	centerNote int
	value      float64
}

// NewKeytrack creates a Keytrack source centered on centerNote (commonly
// 60, middle C).
func NewKeytrack(centerNote int) *Keytrack {
	return &Keytrack{centerNote: centerNote, value: 0.5}
}

// SetNote latches a new triggering note, normalizing it to [0,1] across
// a five-octave span centered on centerNote.
func (k *Keytrack) SetNote(note int) {
	const span = 60.0
	v := 0.5 + float64(note-k.centerNote)/span
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	k.value = v
}

// Process implements Processor, filling buf with the constant latched
// keytrack value.
func (k *Keytrack) Process(buf []float64) {
	for i := range buf {
		buf[i] = k.value
	}
}
