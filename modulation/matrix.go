// Package modulation implements the per-voice modulation matrix: LFO,
// envelope, velocity and keytracking sources routed to a small set of
// modulatable parameters, processed in fixed-size blocks alongside
// audio rendering.
package modulation

import "github.com/intuitionamiga/sonora"

// BlockSize is the maximum number of samples a single Process call
// covers. The matrix is re-evaluated once per audio processing block,
// not once per sample, the same granularity the granular sampler pulls
// modulation values at.
const BlockSize = 64

// Target names a parameter a slot's output should be routed to, with a
// per-target amount and polarity.
type Target struct {
	ParameterID sonora.FourCC
	Amount      float64
	Bipolar     bool
}

// addOrRemoveThreshold is the minimum |amount| a target must carry to
// stay registered; updating a target's amount below it removes the
// target instead of leaving a practically-silent route registered.
const addOrRemoveThreshold = 0.001

// Processor is anything that can render BlockSize samples of
// modulation source signal into a caller-provided buffer: an LFO
// oscillator, an envelope follower, or any other per-voice modulator.
type Processor interface {
	Process(buf []float64)
}

// slot pairs a Processor with the targets its output is routed to, and
// the scratch buffer its unipolar [0,1] (or bipolar [-1,1], depending
// on the processor) output is rendered into each block.
type slot struct {
	processor Processor
	targets   []Target
	enabled   bool
	buf       [BlockSize]float64
}

func newSlot(p Processor) *slot {
	return &slot{processor: p, enabled: true, targets: make([]Target, 0, 4)}
}

func (s *slot) addTarget(t Target) { s.targets = append(s.targets, t) }

func (s *slot) clearTargets() { s.targets = s.targets[:0] }

// updateTarget sets (or, if amount drops below threshold, removes) the
// route to parameterID.
func (s *slot) updateTarget(parameterID sonora.FourCC, amount float64, bipolar bool) {
	for i := range s.targets {
		if s.targets[i].ParameterID == parameterID {
			if abs(amount) < addOrRemoveThreshold {
				s.targets = append(s.targets[:i], s.targets[i+1:]...)
				return
			}
			s.targets[i].Amount = amount
			s.targets[i].Bipolar = bipolar
			return
		}
	}
	if abs(amount) >= addOrRemoveThreshold {
		s.addTarget(Target{ParameterID: parameterID, Amount: amount, Bipolar: bipolar})
	}
}

func (s *slot) process(n int) {
	if !s.enabled || s.processor == nil || len(s.targets) == 0 {
		for i := 0; i < n; i++ {
			s.buf[i] = 0
		}
		return
	}
	s.processor.Process(s.buf[:n])
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Matrix routes any number of LFO and envelope slots (room for 4 and 2
// is preallocated), one velocity slot and one keytracking slot into any
// number of target parameters,
// applying each target's bipolar/unipolar conversion and amount on the
// way in.
type Matrix struct {
	lfoSlots        []*slot
	envelopeSlots   []*slot
	velocitySlot    *slot
	keytrackingSlot *slot
	outputSize      int
}

// New creates an empty Matrix with room preallocated for the engine's
// standard slot counts (4 LFO, 2 envelope).
func New() *Matrix {
	return &Matrix{
		lfoSlots:      make([]*slot, 0, 4),
		envelopeSlots: make([]*slot, 0, 2),
	}
}

// AddLFOSlot registers an LFO processor and returns its slot index.
func (m *Matrix) AddLFOSlot(p Processor) int {
	m.lfoSlots = append(m.lfoSlots, newSlot(p))
	return len(m.lfoSlots) - 1
}

// AddEnvelopeSlot registers an envelope-follower processor and returns
// its slot index.
func (m *Matrix) AddEnvelopeSlot(p Processor) int {
	m.envelopeSlots = append(m.envelopeSlots, newSlot(p))
	return len(m.envelopeSlots) - 1
}

// SetVelocitySlot installs the single velocity modulation source.
func (m *Matrix) SetVelocitySlot(p Processor) { m.velocitySlot = newSlot(p) }

// SetKeytrackingSlot installs the single keytracking modulation source.
func (m *Matrix) SetKeytrackingSlot(p Processor) { m.keytrackingSlot = newSlot(p) }

func allSlots(m *Matrix) []*slot {
	all := make([]*slot, 0, len(m.lfoSlots)+len(m.envelopeSlots)+2)
	all = append(all, m.lfoSlots...)
	all = append(all, m.envelopeSlots...)
	if m.velocitySlot != nil {
		all = append(all, m.velocitySlot)
	}
	if m.keytrackingSlot != nil {
		all = append(all, m.keytrackingSlot)
	}
	return all
}

// Process renders chunkSize samples (<= BlockSize) of every registered
// slot's processor output.
func (m *Matrix) Process(chunkSize int) {
	if chunkSize > BlockSize {
		panic("modulation: chunk size exceeds BlockSize")
	}
	for _, s := range allSlots(m) {
		s.process(chunkSize)
	}
	m.outputSize = chunkSize
}

// OutputSize reports the number of samples the most recent Process call
// rendered.
func (m *Matrix) OutputSize() int { return m.outputSize }

func applyUnipolarBlock(src []float64, t Target, out []float64) {
	for i, v := range src {
		if t.Bipolar {
			v = (v - 0.5) * 2.0
		}
		out[i] += v * t.Amount
	}
}

func applyBipolarBlock(src []float64, t Target, out []float64) {
	for i, v := range src {
		if !t.Bipolar {
			v = (v + 1.0) / 2.0
		}
		out[i] += v * t.Amount
	}
}

// Output accumulates every slot's contribution to parameterID into
// output (which Output zeroes first), across however many samples were
// rendered by the last Process call (or len(output), if shorter).
//
// LFO slots are bipolar-native; envelope, velocity and keytracking
// slots are unipolar-native. Each target's own Bipolar flag determines
// which conversion, if any, is applied before the amount is folded in.
func (m *Matrix) Output(parameterID sonora.FourCC, output []float64) {
	n := len(output)
	if m.outputSize > 0 && m.outputSize < n {
		n = m.outputSize
	}
	for i := range output {
		output[i] = 0
	}
	for _, s := range m.lfoSlots {
		for _, t := range s.targets {
			if t.ParameterID == parameterID {
				applyBipolarBlock(s.buf[:n], t, output[:n])
			}
		}
	}
	for _, s := range m.envelopeSlots {
		for _, t := range s.targets {
			if t.ParameterID == parameterID {
				applyUnipolarBlock(s.buf[:n], t, output[:n])
			}
		}
	}
	if m.velocitySlot != nil {
		for _, t := range m.velocitySlot.targets {
			if t.ParameterID == parameterID {
				applyUnipolarBlock(m.velocitySlot.buf[:n], t, output[:n])
			}
		}
	}
	if m.keytrackingSlot != nil {
		for _, t := range m.keytrackingSlot.targets {
			if t.ParameterID == parameterID {
				applyUnipolarBlock(m.keytrackingSlot.buf[:n], t, output[:n])
			}
		}
	}
}

func applyUnipolar(v float64, t Target) float64 {
	if t.Bipolar {
		v = (v - 0.5) * 2.0
	}
	return v * t.Amount
}

func applyBipolar(v float64, t Target) float64 {
	if !t.Bipolar {
		v = (v + 1.0) / 2.0
	}
	return v * t.Amount
}

// OutputAt is the per-sample equivalent of Output, used by callers
// (such as the granular sampler's parameter modulation) that need a
// single modulation value rather than a whole block.
func (m *Matrix) OutputAt(parameterID sonora.FourCC, sampleIndex int) float64 {
	var total float64
	for _, s := range m.lfoSlots {
		for _, t := range s.targets {
			if t.ParameterID == parameterID && sampleIndex < len(s.buf) {
				total += applyBipolar(s.buf[sampleIndex], t)
			}
		}
	}
	for _, s := range m.envelopeSlots {
		for _, t := range s.targets {
			if t.ParameterID == parameterID && sampleIndex < len(s.buf) {
				total += applyUnipolar(s.buf[sampleIndex], t)
			}
		}
	}
	if m.velocitySlot != nil {
		for _, t := range m.velocitySlot.targets {
			if t.ParameterID == parameterID && sampleIndex < len(m.velocitySlot.buf) {
				total += applyUnipolar(m.velocitySlot.buf[sampleIndex], t)
			}
		}
	}
	if m.keytrackingSlot != nil {
		for _, t := range m.keytrackingSlot.targets {
			if t.ParameterID == parameterID && sampleIndex < len(m.keytrackingSlot.buf) {
				total += applyUnipolar(m.keytrackingSlot.buf[sampleIndex], t)
			}
		}
	}
	return total
}

// UpdateLFOTarget sets or removes an LFO slot's route to parameterID.
func (m *Matrix) UpdateLFOTarget(slotIndex int, parameterID sonora.FourCC, amount float64, bipolar bool) {
	m.lfoSlots[slotIndex].updateTarget(parameterID, amount, bipolar)
}

// UpdateEnvelopeTarget sets or removes an envelope slot's route to
// parameterID.
func (m *Matrix) UpdateEnvelopeTarget(slotIndex int, parameterID sonora.FourCC, amount float64, bipolar bool) {
	m.envelopeSlots[slotIndex].updateTarget(parameterID, amount, bipolar)
}

// UpdateVelocityTarget sets or removes the velocity slot's route to
// parameterID.
func (m *Matrix) UpdateVelocityTarget(parameterID sonora.FourCC, amount float64, bipolar bool) {
	if m.velocitySlot != nil {
		m.velocitySlot.updateTarget(parameterID, amount, bipolar)
	}
}

// UpdateKeytrackingTarget sets or removes the keytracking slot's route
// to parameterID.
func (m *Matrix) UpdateKeytrackingTarget(parameterID sonora.FourCC, amount float64, bipolar bool) {
	if m.keytrackingSlot != nil {
		m.keytrackingSlot.updateTarget(parameterID, amount, bipolar)
	}
}

// NoteOn resets every LFO slot's phase (via a type assertion against an
// optional Resetter), resets and triggers every envelope slot at full
// depth, and latches velocity/keytracking source values.
func (m *Matrix) NoteOn(noteNumber int, velocity float64) {
	for _, s := range m.lfoSlots {
		if r, ok := s.processor.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
	for _, s := range m.envelopeSlots {
		if r, ok := s.processor.(interface{ NoteOn(float64) }); ok {
			r.NoteOn(1.0)
		}
	}
	if m.velocitySlot != nil {
		if v, ok := m.velocitySlot.processor.(interface{ SetVelocity(float64) }); ok {
			v.SetVelocity(velocity)
		}
	}
	if m.keytrackingSlot != nil {
		if k, ok := m.keytrackingSlot.processor.(interface{ SetNote(int) }); ok {
			k.SetNote(noteNumber)
		}
	}
}

// NoteOff releases every envelope slot.
func (m *Matrix) NoteOff() {
	for _, s := range m.envelopeSlots {
		if r, ok := s.processor.(interface{ NoteOff() }); ok {
			r.NoteOff()
		}
	}
}
