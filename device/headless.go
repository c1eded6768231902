//go:build headless

package device

import "github.com/intuitionamiga/sonora"

// HeadlessPlayer is a no-op AudioOutput for environments with no audio
// hardware (CI, tests): it accepts a Source but never reads from it and
// never produces sound.
type HeadlessPlayer struct {
	started    bool
	src        sonora.Source
	sampleRate int
	channels   int
}

// NewHeadlessPlayer returns a HeadlessPlayer reporting the given
// sampleRate and channels, but never actually producing or consuming
// audio.
func NewHeadlessPlayer(sampleRate, channels int) (*HeadlessPlayer, error) {
	return &HeadlessPlayer{sampleRate: sampleRate, channels: channels}, nil
}

// SampleRate implements AudioOutput.
func (hp *HeadlessPlayer) SampleRate() int { return hp.sampleRate }

// ChannelCount implements AudioOutput.
func (hp *HeadlessPlayer) ChannelCount() int { return hp.channels }

// SetupPlayer implements AudioOutput.
func (hp *HeadlessPlayer) SetupPlayer(src sonora.Source) {
	hp.src = src
}

// Start implements AudioOutput.
func (hp *HeadlessPlayer) Start() { hp.started = true }

// Stop implements AudioOutput.
func (hp *HeadlessPlayer) Stop() { hp.started = false }

// Close implements AudioOutput.
func (hp *HeadlessPlayer) Close() { hp.started = false }

// IsStarted implements AudioOutput.
func (hp *HeadlessPlayer) IsStarted() bool { return hp.started }
