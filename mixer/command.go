package mixer

import (
	"log"

	"github.com/intuitionamiga/sonora"
)

// Command is a deferred mutation to a Mixer's graph or parameters,
// scheduled to take effect at a specific sample frame rather than
// immediately, so a caller on another goroutine (the Player, a UI
// thread) can line up a change to land exactly on a musical boundary
// instead of wherever the audio thread happens to be when it notices
// the request.
type Command struct {
	AtFrame int64
	Apply   func(*Mixer)
}

// commandQueueCapacity bounds how many commands may be pending at once.
// A queue this deep already represents many seconds of scheduled
// changes at typical block sizes; beyond it, Enqueue fails loudly
// instead of letting a runaway caller grow the queue without bound.
const commandQueueCapacity = 1024

// commandQueue holds pending commands sorted by AtFrame, sample-accurate
// rather than block-accurate: Mixer.ProcessBlock splits its block at
// every command boundary that falls inside it so a command always
// takes effect between exactly the right two samples.
//
// Enqueue is safe to call from any goroutine; draining happens only
// from the audio thread inside ProcessBlock, so no lock is needed
// around the slice itself beyond the one guarding concurrent Enqueue
// calls racing each other.
type commandQueue struct {
	mu      chan struct{} // binary semaphore holding one token when unlocked; must be built by newCommandQueue (a nil channel blocks forever)
	pending []Command
}

func newCommandQueue() *commandQueue {
	q := &commandQueue{mu: make(chan struct{}, 1)}
	q.mu <- struct{}{}
	return q
}

func (q *commandQueue) lock()   { <-q.mu }
func (q *commandQueue) unlock() { q.mu <- struct{}{} }

// insertLocked inserts cmd in ascending AtFrame order. Callers must hold
// the queue lock.
func (q *commandQueue) insertLocked(cmd Command) {
	i := len(q.pending)
	for i > 0 && q.pending[i-1].AtFrame > cmd.AtFrame {
		i--
	}
	q.pending = append(q.pending, Command{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = cmd
}

// Enqueue schedules cmd. Commands with AtFrame <= the current block's
// first frame apply at the very start of the next ProcessBlock call.
// Enqueue fails with sonora.ErrQueueFull once the queue is already at
// capacity rather than growing it without bound.
func (q *commandQueue) Enqueue(cmd Command) error {
	q.lock()
	defer q.unlock()
	if len(q.pending) >= commandQueueCapacity {
		return sonora.ErrQueueFull
	}
	q.insertLocked(cmd)
	return nil
}

// ForcePush schedules cmd unconditionally. If the queue is already at
// capacity, it evicts the earliest-due pending command (logging a
// warning) to make room first. Used for safety-critical commands — a
// scheduled stop or source removal — that must never be silently
// dropped by the caller losing a race against queue pressure.
func (q *commandQueue) ForcePush(cmd Command) {
	q.lock()
	defer q.unlock()
	if len(q.pending) >= commandQueueCapacity {
		log.Printf("mixer: command queue full, force-pushing safety-critical command (displacing earliest pending command)")
		q.pending = q.pending[1:]
	}
	q.insertLocked(cmd)
}

// drainUpTo removes and returns every command with AtFrame < endFrame,
// in ascending AtFrame order, leaving later commands queued.
func (q *commandQueue) drainUpTo(endFrame int64) []Command {
	q.lock()
	defer q.unlock()
	n := 0
	for n < len(q.pending) && q.pending[n].AtFrame < endFrame {
		n++
	}
	due := make([]Command, n)
	copy(due, q.pending[:n])
	q.pending = q.pending[n:]
	return due
}
