//go:build headless

package device

import (
	"testing"

	"github.com/intuitionamiga/sonora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentSource struct{}

func (silentSource) ChannelCount() int { return 2 }
func (silentSource) SampleRate() int   { return 48000 }
func (silentSource) IsExhausted() bool { return false }
func (silentSource) Weight() int       { return 1 }
func (silentSource) Write(out []float32, _ sonora.SourceTime) (int, error) {
	return len(out) / 2, nil
}

func TestHeadlessPlayerLifecycle(t *testing.T) {
	hp, err := NewHeadlessPlayer(48000, 2)
	require.NoError(t, err)

	assert.False(t, hp.IsStarted())

	hp.SetupPlayer(silentSource{})
	hp.Start()
	assert.True(t, hp.IsStarted())

	hp.Stop()
	assert.False(t, hp.IsStarted())
}

func TestHeadlessPlayerCloseStopsIfStarted(t *testing.T) {
	hp, err := NewHeadlessPlayer(44100, 1)
	require.NoError(t, err)

	hp.Start()
	hp.Close()
	assert.False(t, hp.IsStarted())
}

var _ AudioOutput = (*HeadlessPlayer)(nil)
