//go:build !headless

package main

import "github.com/intuitionamiga/sonora/device"

// newOutput opens the real audio hardware backend. Building with
// -tags headless swaps this for a no-op stub instead.
func newOutput(sampleRate, channels int) (device.AudioOutput, error) {
	return device.NewOtoPlayer(sampleRate, channels)
}
