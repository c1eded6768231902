package player

import (
	"time"

	"github.com/intuitionamiga/sonora"
)

// StatusContext is arbitrary caller-supplied data attached to a
// playback, echoed back unchanged on every status event for that
// source so a caller can correlate events without maintaining its own
// side table.
type StatusContext any

// StatusEventKind distinguishes the two shapes StatusEvent carries.
type StatusEventKind int

const (
	// EventPosition reports a source's current playback position.
	EventPosition StatusEventKind = iota
	// EventStopped reports that a source has stopped, either because
	// it finished on its own or because it was explicitly removed.
	EventStopped
)

// StatusEvent is sent back from a playing source via the player's
// status channel: either a periodic position update or a one-shot
// stopped notification.
type StatusEvent struct {
	Kind    StatusEventKind
	ID      sonora.SourceID
	Name    string
	Context StatusContext

	// Position is valid when Kind == EventPosition.
	Position time.Duration

	// Exhausted is valid when Kind == EventStopped: true when the
	// source reached its natural end, false when it was stopped
	// explicitly (Stop, StopAt, RemoveGenerator, StopAllSources).
	Exhausted bool
}

// defaultStatusQueueCapacity is the buffered channel size used when a
// caller asks for status events but doesn't otherwise size the queue;
// large enough that a burst of simultaneous stop events won't block the
// audio-adjacent dispatch goroutine under normal load.
const defaultStatusQueueCapacity = 2048
