package player

import "github.com/intuitionamiga/sonora"

// seekable is implemented by sources that can rewind playback to an
// arbitrary frame, such as source.WAVFileSource. Repeat only works for
// sources that satisfy it; anything else plays through once regardless
// of PlaybackOptions.Repeat.
type seekable interface {
	Seek(frame int64) error
}

// repeatingSource wraps a seekable Source, rewinding it to frame 0
// every time it exhausts instead of letting the wrap-up propagate, so a
// looped sound plays forever until explicitly stopped.
type repeatingSource struct {
	inner sonora.Source
	seek  seekable
}

// newRepeatingSource wraps src to loop if it satisfies seekable;
// otherwise it returns src unchanged, since a non-seekable source has no
// way to rewind.
func newRepeatingSource(src sonora.Source) sonora.Source {
	seek, ok := src.(seekable)
	if !ok {
		return src
	}
	return &repeatingSource{inner: src, seek: seek}
}

func (r *repeatingSource) ChannelCount() int { return r.inner.ChannelCount() }
func (r *repeatingSource) SampleRate() int   { return r.inner.SampleRate() }
func (r *repeatingSource) IsExhausted() bool { return false }
func (r *repeatingSource) Weight() int       { return r.inner.Weight() }

func (r *repeatingSource) Write(out []float32, t sonora.SourceTime) (int, error) {
	channels := r.inner.ChannelCount()
	wantFrames := len(out) / channels
	total := 0
	for total < wantFrames {
		n, err := r.inner.Write(out[total*channels:wantFrames*channels], t)
		if err != nil {
			return total, err
		}
		total += n
		if !r.inner.IsExhausted() {
			continue
		}
		if err := r.seek.Seek(0); err != nil || n == 0 {
			break
		}
	}
	return total, nil
}
