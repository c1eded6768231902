package player

import (
	"fmt"

	"github.com/intuitionamiga/sonora"
	srcpkg "github.com/intuitionamiga/sonora/source"
)

// Generator is a sonora.Source that additionally supports note-based
// triggering, the shape sampler.Sampler implements. AddGenerator and
// PlayGenerator accept anything satisfying this interface rather than
// a concrete sampler type, so a caller can plug in a different
// polyphonic voice engine without touching the player.
type Generator interface {
	sonora.Source
	NoteOn(note int, velocity float64) int
	NoteOff(note int)
	StopAll()
}

// playbackHandle is the state shared by every playback handle kind: a
// source living somewhere in the mixer graph, wrapped in the usual
// Converted/Amplified/Panned/Measured chain, with enough back-reference
// to stop itself or change its runtime volume/pan.
type playbackHandle struct {
	id        sonora.SourceID
	mixerID   sonora.MixerID
	name      string
	amp       *srcpkg.Amplified
	pan       *srcpkg.Panned
	stretched *srcpkg.Stretched
	measured  *srcpkg.Measured
	player    *Player

	// seek reaches the original source passed to Player.play, if it
	// satisfied seekable, for Seek to use. It is nil for sources that
	// can't rewind (streamed sources, generators).
	seek seekable
}

// ID reports this source's identifier, the same value status events
// for it carry in StatusEvent.ID.
func (h *playbackHandle) ID() sonora.SourceID { return h.id }

// SetVolume begins ramping this source's linear gain toward volume.
func (h *playbackHandle) SetVolume(volume float64) { h.amp.SetGain(volume) }

// SetPan begins ramping this source's stereo pan toward pan (-1..1).
func (h *playbackHandle) SetPan(pan float64) { h.pan.SetPan(pan) }

// CPULoad reports this source's own processing load; see
// source.Measured.Load for the exact meaning.
func (h *playbackHandle) CPULoad() float64 { return h.measured.Load() }

// SetSpeed begins gliding this source's playback speed toward speed
// (1.0 unity) at glideSemitonesPerSec semitones per second. A
// non-positive glide rate uses the engine's default ramp length instead.
func (h *playbackHandle) SetSpeed(speed, glideSemitonesPerSec float64) {
	h.stretched.SetSpeed(speed, glideSemitonesPerSec)
}

// Seek rewinds or advances this source to the given frame, counted from
// the start of its data. It returns sonora.ErrInvalidConfig if the
// underlying source can't seek (a streamed source or a generator).
func (h *playbackHandle) Seek(frame int64) error {
	if h.seek == nil {
		return fmt.Errorf("%w: player: source does not support seeking", sonora.ErrInvalidConfig)
	}
	return h.seek.Seek(frame)
}

// IsPlaying reports whether the player still considers this source
// active. It returns false once the source has exhausted or been
// stopped, even if its entry hasn't been pruned from the mixer yet.
func (h *playbackHandle) IsPlaying() bool { return h.player.isPlaying(h.id) }

// Stop starts fading the source out on its mixer right away (over the
// playback's FadeOut window, 50ms by default) and detaches it once the
// fade completes.
func (h *playbackHandle) Stop() error { return h.player.stopPlayback(h.mixerID, h.id) }

// StopAt schedules removal of the source once the target mixer's
// cursor reaches atFrame, for a sample-accurate scheduled stop rather
// than an immediate one.
func (h *playbackHandle) StopAt(atFrame int64) error {
	return h.player.stopPlaybackAt(h.mixerID, h.id, atFrame)
}

// FileHandle controls a playing file source.
type FileHandle struct{ playbackHandle }

// SynthHandle controls a playing synth (non-generator) source.
type SynthHandle struct{ playbackHandle }

// GeneratorHandle controls a playing or added Generator: in addition to
// the usual volume/pan/stop controls, it can trigger and release notes.
type GeneratorHandle struct {
	playbackHandle
	gen Generator
}

// NoteOn triggers a new note on the underlying generator.
func (h *GeneratorHandle) NoteOn(note int, velocity float64) int {
	return h.gen.NoteOn(note, velocity)
}

// NoteOff releases note on the underlying generator.
func (h *GeneratorHandle) NoteOff(note int) { h.gen.NoteOff(note) }

// MixerHandle controls a sub-mixer added via Player.AddMixer.
type MixerHandle struct {
	id       sonora.MixerID
	measured *srcpkg.Measured
	player   *Player
}

// ID reports this mixer's graph identifier.
func (h *MixerHandle) ID() sonora.MixerID { return h.id }

// CPULoad reports 0 for every mixer added via Player.AddMixer: sub-mixers
// are not individually measured, since wrapping one in source.Measured
// would take it out of the worker pool's concurrent dispatch path. Use
// Player.CPULoad for the primary mixer's load.
func (h *MixerHandle) CPULoad() float64 {
	if h.measured == nil {
		return 0
	}
	return h.measured.Load()
}

// Remove detaches this mixer (and everything routed through it) from
// its parent.
func (h *MixerHandle) Remove() error { return h.player.RemoveMixer(h.id) }

// EffectHandle controls an effect added via Player.AddEffect.
type EffectHandle struct {
	id      sonora.EffectID
	mixerID sonora.MixerID
	name    string
	player  *Player
}

// ID reports this effect's chain identifier.
func (h *EffectHandle) ID() sonora.EffectID { return h.id }

// Name reports the effect's display name, as given to AddEffect.
func (h *EffectHandle) Name() string { return h.name }

// Remove takes this effect out of its mixer's chain.
func (h *EffectHandle) Remove() error { return h.player.RemoveEffect(h.id) }

// Move relocates this effect within its mixer's chain to newIndex.
func (h *EffectHandle) Move(newIndex int) error {
	return h.player.MoveEffect(h.id, h.mixerID, newIndex)
}
