//go:build headless

package main

import "github.com/intuitionamiga/sonora/device"

// newOutput opens the no-op headless backend, for CI and environments
// with no audio hardware.
func newOutput(sampleRate, channels int) (device.AudioOutput, error) {
	return device.NewHeadlessPlayer(sampleRate, channels)
}
