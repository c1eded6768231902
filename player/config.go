package player

import "runtime"

// Config controls optional Player behavior: whether the mixer graph
// enforces a stereo layout regardless of the output device, and whether
// sub-mixer processing is parallelized across a worker pool.
type Config struct {
	// EnforceStereoPlayback forces the main mixer (and every nested
	// sub-mixer) to run in stereo regardless of the output device's
	// native channel count, remapping to the device's layout only at
	// the very final output stage. Enabled by default so effects and
	// generators can assume a stereo layout.
	EnforceStereoPlayback bool

	// ConcurrentProcessing enables parallel dispatch of a mixer's
	// direct sub-mixer children across a worker pool. The player still
	// falls back to sequential processing per block when there aren't
	// enough sub-mixers to make dispatch worthwhile.
	ConcurrentProcessing bool

	// ConcurrentWorkerThreads is the number of mixer processing worker
	// threads to spawn. Zero means auto-detect from available CPUs.
	ConcurrentWorkerThreads int
}

// NewConfig returns the default configuration: stereo enforced,
// concurrent processing enabled, worker count auto-detected.
func NewConfig() Config {
	return Config{
		EnforceStereoPlayback: true,
		ConcurrentProcessing:  true,
	}
}

// WithEnforceStereoPlayback sets EnforceStereoPlayback and returns cfg,
// for builder-style chaining.
func (cfg Config) WithEnforceStereoPlayback(enabled bool) Config {
	cfg.EnforceStereoPlayback = enabled
	return cfg
}

// WithConcurrentProcessing sets ConcurrentProcessing and returns cfg.
func (cfg Config) WithConcurrentProcessing(enabled bool) Config {
	cfg.ConcurrentProcessing = enabled
	return cfg
}

// WithConcurrentWorkerThreads sets ConcurrentWorkerThreads and returns
// cfg.
func (cfg Config) WithConcurrentWorkerThreads(count int) Config {
	cfg.ConcurrentWorkerThreads = count
	return cfg
}

// EffectiveConcurrentWorkerThreads is the worker count actually used:
// ConcurrentWorkerThreads if set, otherwise the number of available CPUs.
func (cfg Config) EffectiveConcurrentWorkerThreads() int {
	if cfg.ConcurrentWorkerThreads > 0 {
		return cfg.ConcurrentWorkerThreads
	}
	return runtime.NumCPU()
}
