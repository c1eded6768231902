// Package player implements the engine's public playback controller:
// a single primary mixer created automatically, sub-mixers and effects
// addable at runtime, file/synth/generator sources played through
// handles that control their own volume/pan/lifetime, a bounded status
// event channel, and a background goroutine that evicts exhausted
// sources the way the engine's deferred-cleanup thread retires dropped
// audio objects without blocking the audio callback.
package player

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/intuitionamiga/sonora"
	"github.com/intuitionamiga/sonora/device"
	"github.com/intuitionamiga/sonora/mixer"
	srcpkg "github.com/intuitionamiga/sonora/source"
	"github.com/intuitionamiga/sonora/workerpool"
)

// gcInterval is how often the background goroutine scans for exhausted
// sources and reports playback position, mirroring the 100ms poll
// interval the engine's deferred-drop collector thread uses. It is also
// the finest grain any source's PlaybackPosEmitRate can ask for, since
// position is only ever sampled on this tick.
const gcInterval = 100 * time.Millisecond

// defaultFadeSeconds is the fade-out duration applied when a
// PlaybackOptions leaves FadeOut at zero (a zero FadeIn means no fade-in)
// — the same window the mixer itself defaults a scheduled stop to.
const defaultFadeSeconds = 0.05

// ResamplingQuality selects the algorithm Converted uses to match a
// source's native sample rate to the player's. Only linear
// interpolation is implemented today; the other values are reserved so
// callers can select a quality level now and get a better algorithm
// transparently once one lands, without an API break.
type ResamplingQuality int

const (
	ResamplingLinear ResamplingQuality = iota
	ResamplingBest
)

// PlaybackOptions controls how a source is played: its initial volume,
// pan and speed, which mixer it's routed through, whether it loops and
// fades, whether its CPU load is tracked, how often it reports
// position, and what (if any) caller context is echoed back on its
// status events.
type PlaybackOptions struct {
	// Volume is the initial linear gain. Default 1.0.
	Volume float64
	// Pan is the initial stereo position, -1 (left) to 1 (right).
	Pan float64
	// Speed is the initial playback speed multiplier (1.0 unity). A
	// zero value defaults to 1.0.
	Speed float64
	// TargetMixer routes the source through a specific sub-mixer
	// instead of the primary mixer. Nil means the primary mixer.
	TargetMixer *sonora.MixerID
	// StartFrame schedules the source to begin at a specific sample
	// frame on its target mixer's timeline rather than as soon as
	// possible.
	StartFrame int64
	// Repeat loops a file source back to its first frame instead of
	// exhausting once it reaches the end. Ignored by sources that don't
	// support seeking (see source.WAVFileSource.Seek).
	Repeat bool
	// FadeIn ramps volume up from silence over this duration instead of
	// starting at full Volume immediately. Zero disables the fade-in.
	FadeIn time.Duration
	// FadeOut is the fade-out duration applied when this source is
	// stopped (via Stop or StopAt). Zero uses the mixer's default 50ms
	// window rather than an instant cut.
	FadeOut time.Duration
	// ResamplingQuality selects the rate-conversion algorithm. Defaults
	// to ResamplingLinear.
	ResamplingQuality ResamplingQuality
	// MeasureCPULoad enables per-source CPU load tracking (see
	// playbackHandle.CPULoad). Measurement has a small but nonzero cost,
	// so callers that don't need per-source load can disable it.
	// Defaults to true (a zero-value PlaybackOptions still measures).
	MeasureCPULoad *bool
	// PlaybackPosEmitRate caps how often this source emits a Position
	// status event. Zero defaults to gcInterval; values below gcInterval
	// are clamped to it, since that's the underlying poll granularity.
	PlaybackPosEmitRate time.Duration
	// Context is echoed back unchanged on every status event this
	// source produces.
	Context StatusContext
	// Name is a human-readable label used in status events and in
	// Player's tree dump. Defaults to a generic name per source kind
	// when left empty.
	Name string
}

// DefaultPlaybackOptions returns PlaybackOptions with unity volume,
// centered pan, unity speed, CPU load measurement on, and no target
// mixer (the primary mixer).
func DefaultPlaybackOptions() PlaybackOptions {
	measure := true
	return PlaybackOptions{Volume: 1.0, Speed: 1.0, MeasureCPULoad: &measure}
}

func (opts PlaybackOptions) validate() error {
	if opts.Volume < 0 {
		return fmt.Errorf("%w: negative volume %v", sonora.ErrInvalidConfig, opts.Volume)
	}
	if opts.Pan < -1 || opts.Pan > 1 {
		return fmt.Errorf("%w: pan %v out of range [-1,1]", sonora.ErrInvalidConfig, opts.Pan)
	}
	if opts.Speed < 0 {
		return fmt.Errorf("%w: negative speed %v", sonora.ErrInvalidConfig, opts.Speed)
	}
	if opts.FadeIn < 0 {
		return fmt.Errorf("%w: negative fade-in %v", sonora.ErrInvalidConfig, opts.FadeIn)
	}
	if opts.FadeOut < 0 {
		return fmt.Errorf("%w: negative fade-out %v", sonora.ErrInvalidConfig, opts.FadeOut)
	}
	return nil
}

func (opts PlaybackOptions) measuresCPU() bool {
	return opts.MeasureCPULoad == nil || *opts.MeasureCPULoad
}

func (opts PlaybackOptions) speed() float64 {
	if opts.Speed == 0 {
		return 1.0
	}
	return opts.Speed
}

func (opts PlaybackOptions) posEmitRate() time.Duration {
	if opts.PlaybackPosEmitRate < gcInterval {
		return gcInterval
	}
	return opts.PlaybackPosEmitRate
}

type mixerInfo struct {
	parentID       sonora.MixerID
	parentSourceID sonora.SourceID
	mixer          *mixer.Mixer
	measured       *srcpkg.Measured // nil for sub-mixers; see MixerHandle.CPULoad
}

type effectInfo struct {
	mixerID sonora.MixerID
	name    string
}

type playingInfo struct {
	id          sonora.SourceID
	mixerID     sonora.MixerID
	name        string
	isTransient bool
	context     StatusContext
	tap         *positionTap
	measured    *srcpkg.Measured // nil when PlaybackOptions.MeasureCPULoad is false

	// fadeOutSeconds is the fade-out window Stop/StopAt apply when
	// detaching this source, carried from PlaybackOptions.FadeOut.
	fadeOutSeconds float64

	// posEmitRate throttles how often emitPosition actually sends an
	// event for this source; lastPosEmit is the wall-clock time of the
	// last one sent.
	posEmitRate time.Duration
	lastPosEmit time.Time

	// scheduledStopFrame is the target mixer's cursor value at which a
	// pending StopAt should be finalized in bookkeeping (the audio
	// thread itself already starts the source's fade-out sample-accurately
	// via mixer.RemoveSourceAtWithFade; this only tracks when it becomes safe to
	// report Stopped and evict from the playing table). -1 means no
	// scheduled stop is pending.
	scheduledStopFrame int64
}

// Player is the engine's playback controller. It owns the primary
// mixer (always present, never removable), an optional worker pool for
// concurrent sub-mixer dispatch, and every handle-addressable object
// (sub-mixers, effects, playing sources) reachable from it.
type Player struct {
	cfg        Config
	output     device.AudioOutput
	pool       *workerpool.Pool
	sampleRate int
	channels   int

	rootMeasured *srcpkg.Measured
	rootGuarded  *srcpkg.Guarded
	outputVol    *srcpkg.Amplified

	mu      sync.Mutex
	mixers  map[sonora.MixerID]*mixerInfo
	effects map[sonora.EffectID]*effectInfo
	playing map[sonora.SourceID]*playingInfo

	statusCh chan StatusEvent
	stopGC   chan struct{}
	gcDone   chan struct{}
}

// New creates a Player driving output with the default configuration.
func New(output device.AudioOutput) (*Player, error) {
	return NewWithConfig(output, NewConfig())
}

// NewWithConfig creates a Player driving output, using cfg to decide
// whether playback enforces stereo and whether sub-mixer processing is
// parallelized.
func NewWithConfig(output device.AudioOutput, cfg Config) (*Player, error) {
	if output == nil {
		return nil, fmt.Errorf("%w: nil output device", sonora.ErrInvalidConfig)
	}
	sampleRate := output.SampleRate()
	if err := sonora.ClampChannels(output.ChannelCount()); err != nil {
		return nil, err
	}

	channels := output.ChannelCount()
	if cfg.EnforceStereoPlayback {
		channels = 2
	}

	var pool *workerpool.Pool
	if cfg.ConcurrentProcessing && cfg.EffectiveConcurrentWorkerThreads() > 1 {
		pool = workerpool.New(cfg.EffectiveConcurrentWorkerThreads(), 64)
	}

	root := mixer.New(sonora.PrimaryMixerID, channels, sampleRate, pool)
	measuredRoot := srcpkg.NewMeasured(root)
	guardedRoot := srcpkg.NewGuarded(measuredRoot)
	outputVol := srcpkg.NewAmplified(guardedRoot, 1.0)

	var final sonora.Source = outputVol
	if channels != output.ChannelCount() {
		final = srcpkg.NewConverted(outputVol, sampleRate, output.ChannelCount(), srcpkg.NewLinearResampler(sampleRate, sampleRate))
	}
	output.SetupPlayer(final)

	p := &Player{
		cfg:          cfg,
		output:       output,
		pool:         pool,
		sampleRate:   sampleRate,
		channels:     channels,
		rootMeasured: measuredRoot,
		rootGuarded:  guardedRoot,
		outputVol:    outputVol,
		mixers:       map[sonora.MixerID]*mixerInfo{},
		effects:      map[sonora.EffectID]*effectInfo{},
		playing:      map[sonora.SourceID]*playingInfo{},
		statusCh:     make(chan StatusEvent, defaultStatusQueueCapacity),
		stopGC:       make(chan struct{}),
		gcDone:       make(chan struct{}),
	}
	p.mixers[sonora.PrimaryMixerID] = &mixerInfo{
		parentID: sonora.PrimaryMixerID,
		mixer:    root,
		measured: measuredRoot,
	}

	go p.gcLoop()
	return p, nil
}

// Events returns the player's status event channel. Position and
// Stopped events for every played source arrive here; the channel is
// never closed while the player is open.
func (p *Player) Events() <-chan StatusEvent { return p.statusCh }

// OutputSampleRate reports the device's sample rate in Hz.
func (p *Player) OutputSampleRate() int { return p.sampleRate }

// OutputChannelCount reports the primary mixer's channel count (2 when
// stereo is enforced, the device's native count otherwise).
func (p *Player) OutputChannelCount() int { return p.channels }

// OutputVolume reports the player's global linear output gain.
func (p *Player) OutputVolume() float64 { return p.outputVol.Gain() }

// SetOutputVolume begins ramping the player's global output gain.
func (p *Player) SetOutputVolume(volume float64) { p.outputVol.SetGain(volume) }

// CPULoad reports the primary mixer's processing load; see
// source.Measured.Load for the exact meaning.
func (p *Player) CPULoad() float64 { return p.rootMeasured.Load() }

// SetPanicHandler installs a callback invoked whenever a source
// anywhere in the primary mixer graph panics during rendering. The
// panicking source is silenced permanently (see source.Guarded); this
// callback only gives the caller a chance to observe and log the event.
// Passing nil clears any previously installed handler.
func (p *Player) SetPanicHandler(handler srcpkg.PanicHandler) {
	p.rootGuarded.SetPanicHandler(handler)
}

// IsRunning reports whether the output device is currently started.
func (p *Player) IsRunning() bool { return p.output.IsStarted() }

// Start begins audio output.
func (p *Player) Start() { p.output.Start() }

// Stop pauses audio output without dropping any playing source; call
// Start to resume. Use StopAllSources to drop transient sources.
func (p *Player) Stop() { p.output.Stop() }

// Close permanently shuts the player down: stops the background
// cleanup goroutine and closes the output device. The player must not
// be used afterward.
func (p *Player) Close() {
	close(p.stopGC)
	<-p.gcDone
	p.output.Close()
}

func (p *Player) buildChain(src sonora.Source, opts PlaybackOptions) (*positionTap, *srcpkg.Amplified, *srcpkg.Panned, *srcpkg.Stretched, *srcpkg.Measured, seekable) {
	seek, _ := src.(seekable)
	if opts.Repeat {
		src = newRepeatingSource(src)
	}
	stretched := srcpkg.NewStretched(src, srcpkg.PassthroughStretcher{}, opts.speed())
	converted := srcpkg.NewConverted(stretched, p.sampleRate, p.channels, srcpkg.NewLinearResampler(src.SampleRate(), p.sampleRate))

	startVolume := opts.Volume
	if opts.FadeIn > 0 {
		startVolume = 0
	}
	amp := srcpkg.NewAmplified(converted, startVolume)
	if opts.FadeIn > 0 {
		amp.GlideTo(opts.Volume, int(opts.FadeIn.Seconds()*float64(p.sampleRate)))
	}
	pan := srcpkg.NewPanned(amp, opts.Pan)

	var measured *srcpkg.Measured
	var tapSrc sonora.Source = pan
	if opts.measuresCPU() {
		measured = srcpkg.NewMeasured(pan)
		tapSrc = measured
	}
	tap := newPositionTap(tapSrc)
	return tap, amp, pan, stretched, measured, seek
}

func (p *Player) play(src sonora.Source, opts PlaybackOptions, defaultName string, isTransient bool) (*playbackHandle, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mixerID := sonora.PrimaryMixerID
	if opts.TargetMixer != nil {
		mixerID = *opts.TargetMixer
	}

	p.mu.Lock()
	info, ok := p.mixers[mixerID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, mixerID)
	}

	name := opts.Name
	if name == "" {
		name = defaultName
	}

	tap, amp, pan, stretched, measured, seek := p.buildChain(src, opts)
	var id sonora.SourceID
	var err error
	if opts.StartFrame > 0 {
		id, err = info.mixer.AddSourceAt(opts.StartFrame, tap)
	} else {
		id, err = info.mixer.AddSource(tap)
	}
	if err != nil {
		return nil, fmt.Errorf("player: adding source: %w", err)
	}

	fadeOutSeconds := defaultFadeSeconds
	if opts.FadeOut > 0 {
		fadeOutSeconds = opts.FadeOut.Seconds()
	}

	ph := &playbackHandle{
		id: id, mixerID: mixerID, name: name,
		amp: amp, pan: pan, stretched: stretched, measured: measured,
		player: p, seek: seek,
	}
	p.mu.Lock()
	p.playing[id] = &playingInfo{
		id: id, mixerID: mixerID, name: name, isTransient: isTransient,
		context: opts.Context, tap: tap, measured: measured,
		fadeOutSeconds:     fadeOutSeconds,
		posEmitRate:        opts.posEmitRate(),
		scheduledStopFrame: -1,
	}
	p.mu.Unlock()
	return ph, nil
}

// PlayFile decodes a WAV container from r and plays it as a new,
// transient source.
func (p *Player) PlayFile(r io.Reader, opts PlaybackOptions) (*FileHandle, error) {
	wav, err := srcpkg.OpenWAV(r)
	if err != nil {
		return nil, fmt.Errorf("player: opening file: %w", err)
	}
	ph, err := p.play(wav, opts, "file", true)
	if err != nil {
		return nil, err
	}
	return &FileHandle{*ph}, nil
}

// PlaySynthSource plays an arbitrary synth source (anything satisfying
// sonora.Source that isn't a Generator) as a new, transient source.
func (p *Player) PlaySynthSource(src sonora.Source, opts PlaybackOptions) (*SynthHandle, error) {
	ph, err := p.play(src, opts, "synth", true)
	if err != nil {
		return nil, err
	}
	return &SynthHandle{*ph}, nil
}

// PlayGenerator plays gen as a new, transient source: it is removed
// like any other source when stopped or when StopAllSources runs.
func (p *Player) PlayGenerator(gen Generator, opts PlaybackOptions) (*GeneratorHandle, error) {
	ph, err := p.play(gen, opts, "generator", true)
	if err != nil {
		return nil, err
	}
	return &GeneratorHandle{playbackHandle: *ph, gen: gen}, nil
}

// AddGenerator adds gen to mixerID (nil for the primary mixer) as a
// persistent source: it survives StopAllSources and must be removed
// explicitly via RemoveGenerator or the returned handle's Stop.
func (p *Player) AddGenerator(gen Generator, mixerID *sonora.MixerID) (*GeneratorHandle, error) {
	opts := DefaultPlaybackOptions()
	opts.TargetMixer = mixerID
	ph, err := p.play(gen, opts, "generator", false)
	if err != nil {
		return nil, err
	}
	return &GeneratorHandle{playbackHandle: *ph, gen: gen}, nil
}

// RemoveGenerator removes a generator previously added via AddGenerator.
func (p *Player) RemoveGenerator(id sonora.SourceID) error {
	p.mu.Lock()
	pinfo, ok := p.playing[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: generator %d", sonora.ErrNotFound, id)
	}
	return p.stopPlayback(pinfo.mixerID, id)
}

func (p *Player) isPlaying(id sonora.SourceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.playing[id]
	return ok
}

func (p *Player) stopPlayback(mixerID sonora.MixerID, id sonora.SourceID) error {
	p.mu.Lock()
	info, mok := p.mixers[mixerID]
	pinfo, pok := p.playing[id]
	p.mu.Unlock()
	if !mok {
		return fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, mixerID)
	}
	if !pok {
		return fmt.Errorf("%w: source %d", sonora.ErrAlreadyRemoved, id)
	}

	info.mixer.RemoveSourceAtWithFade(info.mixer.CurrentFrame(), id, pinfo.fadeOutSeconds)

	p.mu.Lock()
	delete(p.playing, id)
	p.mu.Unlock()

	p.emitStopped(pinfo, false)
	return nil
}

// stopPlaybackAt schedules a sample-accurate stop: the mixer starts the
// source's fade-out exactly at atFrame and detaches it once the fade
// completes, while bookkeeping (the playing table
// and the Stopped status event) is finalized the next time the
// background goroutine notices the mixer's cursor has reached it.
func (p *Player) stopPlaybackAt(mixerID sonora.MixerID, id sonora.SourceID, atFrame int64) error {
	p.mu.Lock()
	info, mok := p.mixers[mixerID]
	pinfo, pok := p.playing[id]
	if pok {
		pinfo.scheduledStopFrame = atFrame
	}
	p.mu.Unlock()
	if !mok {
		return fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, mixerID)
	}
	if !pok {
		return fmt.Errorf("%w: source %d", sonora.ErrAlreadyRemoved, id)
	}

	info.mixer.RemoveSourceAtWithFade(atFrame, id, pinfo.fadeOutSeconds)
	return nil
}

// AddMixer adds a new sub-mixer under parentMixerID (nil for the
// primary mixer).
func (p *Player) AddMixer(parentMixerID *sonora.MixerID) (*MixerHandle, error) {
	parent := sonora.PrimaryMixerID
	if parentMixerID != nil {
		parent = *parentMixerID
	}

	p.mu.Lock()
	pinfo, ok := p.mixers[parent]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, parent)
	}

	// Only the primary mixer's pool dispatches concurrently; nested
	// sub-mixers always process their own children sequentially.
	child := mixer.New(sonora.NewMixerID(), p.channels, p.sampleRate, nil)
	srcID, err := pinfo.mixer.AddSubmixer(child)
	if err != nil {
		return nil, fmt.Errorf("player: adding sub-mixer: %w", err)
	}

	p.mu.Lock()
	p.mixers[child.ID()] = &mixerInfo{parentID: parent, parentSourceID: srcID, mixer: child}
	p.mu.Unlock()

	return &MixerHandle{id: child.ID(), player: p}, nil
}

// RemoveMixer removes mixerID (and every effect attached to it) from
// its parent. The primary mixer cannot be removed.
func (p *Player) RemoveMixer(mixerID sonora.MixerID) error {
	if mixerID == sonora.PrimaryMixerID {
		return fmt.Errorf("%w: cannot remove the primary mixer", sonora.ErrInvalidConfig)
	}

	p.mu.Lock()
	info, ok := p.mixers[mixerID]
	var parentInfo *mixerInfo
	if ok {
		parentInfo = p.mixers[info.parentID]
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, mixerID)
	}

	parentInfo.mixer.RemoveSource(info.parentSourceID)

	p.mu.Lock()
	for id, e := range p.effects {
		if e.mixerID == mixerID {
			delete(p.effects, id)
		}
	}
	delete(p.mixers, mixerID)
	p.mu.Unlock()
	return nil
}

// RemoveAllMixers removes every direct sub-mixer of mixerID (nil for
// the primary mixer).
func (p *Player) RemoveAllMixers(mixerID *sonora.MixerID) error {
	parent := sonora.PrimaryMixerID
	if mixerID != nil {
		parent = *mixerID
	}

	p.mu.Lock()
	var children []sonora.MixerID
	for id, info := range p.mixers {
		if id != sonora.PrimaryMixerID && info.parentID == parent {
			children = append(children, id)
		}
	}
	p.mu.Unlock()

	for _, child := range children {
		if err := p.RemoveMixer(child); err != nil {
			return err
		}
	}
	return nil
}

// AddEffect appends effect to mixerID's chain (nil for the primary
// mixer), under the given display name.
func (p *Player) AddEffect(mixerID *sonora.MixerID, effect mixer.Effect, name string) (*EffectHandle, error) {
	target := sonora.PrimaryMixerID
	if mixerID != nil {
		target = *mixerID
	}

	p.mu.Lock()
	info, ok := p.mixers[target]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, target)
	}

	id, err := info.mixer.AddEffect(effect)
	if err != nil {
		return nil, fmt.Errorf("player: adding effect: %w", err)
	}
	p.mu.Lock()
	p.effects[id] = &effectInfo{mixerID: target, name: name}
	p.mu.Unlock()

	return &EffectHandle{id: id, mixerID: target, name: name, player: p}, nil
}

// MoveEffect relocates effectID (which must belong to mixerID) to
// newIndex within its chain.
func (p *Player) MoveEffect(effectID sonora.EffectID, mixerID sonora.MixerID, newIndex int) error {
	p.mu.Lock()
	einfo, ok := p.effects[effectID]
	var info *mixerInfo
	if ok {
		info = p.mixers[mixerID]
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: effect %d", sonora.ErrNotFound, effectID)
	}
	if einfo.mixerID != mixerID {
		return fmt.Errorf("%w: effect %d does not belong to mixer %d", sonora.ErrInvalidConfig, effectID, mixerID)
	}
	if err := info.mixer.MoveEffect(effectID, newIndex); err != nil {
		return fmt.Errorf("player: moving effect: %w", err)
	}
	return nil
}

// RemoveEffect removes effectID from whichever mixer it belongs to.
func (p *Player) RemoveEffect(effectID sonora.EffectID) error {
	p.mu.Lock()
	einfo, ok := p.effects[effectID]
	var info *mixerInfo
	if ok {
		info = p.mixers[einfo.mixerID]
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: effect %d", sonora.ErrNotFound, effectID)
	}

	info.mixer.RemoveEffect(effectID)

	p.mu.Lock()
	delete(p.effects, effectID)
	p.mu.Unlock()
	return nil
}

// RemoveAllEffects clears every effect from mixerID's chain (nil for
// the primary mixer).
func (p *Player) RemoveAllEffects(mixerID *sonora.MixerID) error {
	target := sonora.PrimaryMixerID
	if mixerID != nil {
		target = *mixerID
	}

	p.mu.Lock()
	info, ok := p.mixers[target]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: mixer %d", sonora.ErrNotFound, target)
	}
	info.mixer.RemoveAllEffects()

	p.mu.Lock()
	for id, e := range p.effects {
		if e.mixerID == target {
			delete(p.effects, id)
		}
	}
	p.mu.Unlock()
	return nil
}

// StopAllSources immediately stops every transient source (played via
// PlayFile/PlaySynthSource/PlayGenerator), leaving persistent sources
// added via AddGenerator untouched.
func (p *Player) StopAllSources() error {
	p.mu.Lock()
	var toStop []*playingInfo
	for _, pinfo := range p.playing {
		if pinfo.isTransient {
			toStop = append(toStop, pinfo)
		}
	}
	p.mu.Unlock()

	for _, pinfo := range toStop {
		if err := p.stopPlayback(pinfo.mixerID, pinfo.id); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) emitStopped(pinfo *playingInfo, exhausted bool) {
	ev := StatusEvent{
		Kind: EventStopped, ID: pinfo.id, Name: pinfo.name,
		Context: pinfo.context, Exhausted: exhausted,
	}
	select {
	case p.statusCh <- ev:
	default:
	}
}

func (p *Player) emitPosition(pinfo *playingInfo, now time.Time) {
	if pinfo.posEmitRate > 0 && now.Sub(pinfo.lastPosEmit) < pinfo.posEmitRate {
		return
	}
	pinfo.lastPosEmit = now
	ev := StatusEvent{
		Kind: EventPosition, ID: pinfo.id, Name: pinfo.name,
		Context: pinfo.context, Position: pinfo.tap.Position(),
	}
	select {
	case p.statusCh <- ev:
	default:
	}
}

// gcLoop is the player's deferred-cleanup thread: it periodically
// retires sources that have exhausted on their own (end of file, a
// decayed voice) and reports playback position for everything still
// playing, without ever touching the audio callback.
func (p *Player) gcLoop() {
	defer close(p.gcDone)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopGC:
			return
		case <-ticker.C:
			p.reapExhausted()
		}
	}
}

func (p *Player) reapExhausted() {
	p.mu.Lock()
	snapshot := make([]*playingInfo, 0, len(p.playing))
	mixerFrame := make(map[sonora.MixerID]int64, len(p.mixers))
	for id, info := range p.mixers {
		mixerFrame[id] = info.mixer.CurrentFrame()
	}
	for _, pinfo := range p.playing {
		snapshot = append(snapshot, pinfo)
	}
	p.mu.Unlock()

	now := time.Now()
	for _, pinfo := range snapshot {
		switch {
		case pinfo.tap.IsExhausted():
			p.mu.Lock()
			delete(p.playing, pinfo.id)
			p.mu.Unlock()
			p.emitStopped(pinfo, true)
		case pinfo.scheduledStopFrame >= 0 && mixerFrame[pinfo.mixerID] >= pinfo.scheduledStopFrame:
			p.mu.Lock()
			delete(p.playing, pinfo.id)
			p.mu.Unlock()
			p.emitStopped(pinfo, false)
		default:
			p.emitPosition(pinfo, now)
		}
	}
}

// String renders the mixer graph as an indented tree: every mixer,
// its effects and the sources routed through it.
func (p *Player) String() string {
	var b strings.Builder
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeMixer(&b, sonora.PrimaryMixerID, 0)
	return b.String()
}

func (p *Player) writeMixer(b *strings.Builder, mixerID sonora.MixerID, indent int) {
	pad := strings.Repeat("  ", indent)
	if mixerID == sonora.PrimaryMixerID {
		fmt.Fprintf(b, "%s- Primary Mixer (ID: %d)\n", pad, mixerID)
	} else {
		fmt.Fprintf(b, "%s- Sub-Mixer (ID: %d)\n", pad, mixerID)
	}

	var children []sonora.MixerID
	for id, info := range p.mixers {
		if id != sonora.PrimaryMixerID && info.parentID == mixerID {
			children = append(children, id)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	for _, child := range children {
		p.writeMixer(b, child, indent+1)
	}

	var sources []string
	for _, pinfo := range p.playing {
		if pinfo.mixerID == mixerID {
			sources = append(sources, fmt.Sprintf("%s (ID: %d)", pinfo.name, pinfo.id))
		}
	}
	if len(sources) > 0 {
		sort.Strings(sources)
		fmt.Fprintf(b, "%s  > Sources:\n", pad)
		for _, s := range sources {
			fmt.Fprintf(b, "%s    - %s\n", pad, s)
		}
	}

	var effects []string
	for id, e := range p.effects {
		if e.mixerID == mixerID {
			effects = append(effects, fmt.Sprintf("%s (ID: %d)", e.name, id))
		}
	}
	if len(effects) > 0 {
		sort.Strings(effects)
		fmt.Fprintf(b, "%s  ^ Effects:\n", pad)
		for _, e := range effects {
			fmt.Fprintf(b, "%s    - %s\n", pad, e)
		}
	}
}
