package source

import (
	"fmt"
	"log"
	"sync"

	"github.com/intuitionamiga/sonora"
)

// PanicHandler is called exactly once, with whatever value recover()
// produced, the first time a Guarded's wrapped source panics.
type PanicHandler func(recovered any)

// Guarded wraps the root of a mixer graph (or any Source a misbehaving
// third-party generator might sit behind), recovering from a panic
// inside the wrapped Write call instead of taking the whole audio
// thread down with it. Once tripped, it silences itself permanently:
// a source that panicked once is not trusted to keep running, the same
// stance the worker pool takes toward a panicking task.
type Guarded struct {
	inner   sonora.Source
	tripped bool

	handlerMu sync.Mutex
	handler   PanicHandler
}

// NewGuarded wraps inner with panic isolation.
func NewGuarded(inner sonora.Source) *Guarded {
	return &Guarded{inner: inner}
}

// SetPanicHandler installs (or, passed nil, clears) the callback invoked
// once when the wrapped source panics. Safe to call concurrently with
// Write.
func (g *Guarded) SetPanicHandler(handler PanicHandler) {
	g.handlerMu.Lock()
	g.handler = handler
	g.handlerMu.Unlock()
}

func (g *Guarded) ChannelCount() int { return g.inner.ChannelCount() }
func (g *Guarded) SampleRate() int   { return g.inner.SampleRate() }

// IsExhausted reports true once the guard has tripped, in addition to
// whatever the wrapped source itself reports.
func (g *Guarded) IsExhausted() bool {
	return g.tripped || g.inner.IsExhausted()
}

// Tripped reports whether the wrapped source has panicked and been
// permanently silenced.
func (g *Guarded) Tripped() bool { return g.tripped }

// Weight implements sonora.Source: a tripped guard costs nothing, since
// it will never produce anything but silence again.
func (g *Guarded) Weight() int {
	if g.tripped {
		return 0
	}
	return g.inner.Weight()
}

func (g *Guarded) Write(out []float32, t sonora.SourceTime) (n int, err error) {
	if g.tripped {
		for i := range out {
			out[i] = 0
		}
		return 0, nil
	}

	defer func() {
		if r := recover(); r != nil {
			g.tripped = true
			for i := range out {
				out[i] = 0
			}
			log.Printf("sonora: source panicked and was silenced: %v", r)
			err = fmt.Errorf("%w: %v", sonora.ErrGuardTripped, r)
			n = 0

			g.handlerMu.Lock()
			handler := g.handler
			g.handlerMu.Unlock()
			if handler != nil {
				handler(r)
			}
		}
	}()

	return g.inner.Write(out, t)
}
