// Package device implements the engine's audio output backend
// abstraction: a small interface wrapping whatever actually moves
// samples to a sound card, with a real implementation built on
// ebitengine/oto/v3 and a headless no-op implementation selected by
// build tag for environments with no audio hardware (CI, tests).
package device

import "github.com/intuitionamiga/sonora"

// AudioOutput is the engine's device backend contract: set up once
// with the Source that will supply every sample played, then
// started/stopped/closed as playback is controlled.
type AudioOutput interface {
	// SetupPlayer installs src as the audio thread's sample source.
	// Must be called before Start.
	SetupPlayer(src sonora.Source)
	Start()
	Stop()
	Close()
	IsStarted() bool

	// SampleRate and ChannelCount report the device's native output
	// format, fixed for the device's lifetime.
	SampleRate() int
	ChannelCount() int
}
