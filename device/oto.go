//go:build !headless

package device

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
	"github.com/intuitionamiga/sonora"
)

// OtoPlayer is the default AudioOutput, backed by ebitengine/oto/v3.
// Its hot path (Read, called from oto's own audio thread) reads the
// installed Source through an atomic pointer rather than a mutex, so
// the audio thread never blocks behind a SetupPlayer/Start/Stop call
// landing on another goroutine.
type OtoPlayer struct {
	ctx        *oto.Context
	player     *oto.Player
	src        atomic.Pointer[sonora.Source]
	channels   int
	sampleRate int
	frame      int64
	sampleBuf  []float32
	started    bool
	mu         sync.Mutex
}

// NewOtoPlayer opens an oto context at sampleRate Hz with the given
// channel count, blocking until the device is ready.
func NewOtoPlayer(sampleRate, channels int) (*OtoPlayer, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0, // library default
	}

	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, err
	}
	<-ready

	return &OtoPlayer{ctx: ctx, channels: channels, sampleRate: sampleRate}, nil
}

// SampleRate implements AudioOutput.
func (op *OtoPlayer) SampleRate() int { return op.sampleRate }

// ChannelCount implements AudioOutput.
func (op *OtoPlayer) ChannelCount() int { return op.channels }

// SetupPlayer implements AudioOutput.
func (op *OtoPlayer) SetupPlayer(src sonora.Source) {
	op.mu.Lock()
	defer op.mu.Unlock()

	op.src.Store(&src)
	op.player = op.ctx.NewPlayer(op)
	op.sampleBuf = make([]float32, 4096)
}

// Read implements io.Reader for oto's player, pulling audio from the
// installed Source. Called from oto's internal audio goroutine.
func (op *OtoPlayer) Read(p []byte) (int, error) {
	numSamples := len(p) / 4

	srcPtr := op.src.Load()
	if srcPtr == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	src := *srcPtr

	if cap(op.sampleBuf) < numSamples {
		op.sampleBuf = make([]float32, numSamples)
	}
	buf := op.sampleBuf[:numSamples]

	t := sonora.SourceTime{Frame: atomic.LoadInt64(&op.frame)}
	n, err := src.Write(buf, t)
	if err != nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	framesWritten := n * op.channels
	for i := framesWritten; i < numSamples; i++ {
		buf[i] = 0
	}
	atomic.AddInt64(&op.frame, int64(n))

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&buf[0]))[:len(p)])
	return len(p), nil
}

// Start implements AudioOutput.
func (op *OtoPlayer) Start() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.started && op.player != nil {
		op.player.Play()
		op.started = true
	}
}

// Stop implements AudioOutput.
func (op *OtoPlayer) Stop() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.started && op.player != nil {
		op.player.Pause()
		op.started = false
	}
}

// Close implements AudioOutput.
func (op *OtoPlayer) Close() {
	op.Stop()
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.player != nil {
		op.player.Close()
		op.player = nil
	}
}

// IsStarted implements AudioOutput.
func (op *OtoPlayer) IsStarted() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.started
}
