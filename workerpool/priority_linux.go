//go:build linux

package workerpool

import (
	"log"

	"golang.org/x/sys/unix"
)

// realTimeNiceness is the scheduling priority a worker goroutine asks
// the kernel for. Go doesn't expose per-goroutine thread affinity, so
// this only meaningfully helps once the goroutine has been pinned to an
// OS thread (runtime.LockOSThread), which callers that care about
// worst-case latency are expected to have done before spawning the
// pool; best-effort niceness is still applied either way.
const realTimeNiceness = -11

// promoteCurrentThreadToRealTime attempts to raise the calling OS
// thread's scheduling priority, the same best-effort promotion
// original_source's worker pool attempts via audio_thread_priority —
// Go has no equivalent SCHED_FIFO binding without cgo, so this uses the
// nearest portable lever, setpriority(2), and logs rather than fails if
// the process lacks permission.
func promoteCurrentThreadToRealTime() {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, realTimeNiceness); err != nil {
		log.Printf("workerpool: could not promote worker thread priority: %v", err)
	}
}
