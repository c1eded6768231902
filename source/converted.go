package source

import "github.com/intuitionamiga/sonora"

// Converted wraps a Source of one sample rate and channel count,
// presenting it at a different sample rate and/or channel count. It is
// the adapter every mixer input that doesn't already match the mixer's
// native format passes through.
type Converted struct {
	inner          sonora.Source
	resampler      Resampler
	outSampleRate  int
	outChannels    int
	inBuf          []float32
	resampledRatio float64
}

// NewConverted wraps inner, presenting it at outSampleRate Hz with
// outChannels channels. If inner already matches both, Write passes
// through inner's output (after channel remap, if needed) with no
// resampling work.
func NewConverted(inner sonora.Source, outSampleRate, outChannels int, resampler Resampler) *Converted {
	return &Converted{
		inner:          inner,
		resampler:      resampler,
		outSampleRate:  outSampleRate,
		outChannels:    outChannels,
		resampledRatio: float64(inner.SampleRate()) / float64(outSampleRate),
	}
}

func (c *Converted) ChannelCount() int { return c.outChannels }
func (c *Converted) SampleRate() int   { return c.outSampleRate }
func (c *Converted) IsExhausted() bool { return c.inner.IsExhausted() }
func (c *Converted) Weight() int       { return c.inner.Weight() }

// Write produces up to len(out)/outChannels frames at the wrapper's
// configured rate and channel count, resampling and remapping channels
// from inner as needed.
func (c *Converted) Write(out []float32, t sonora.SourceTime) (int, error) {
	outFrames := len(out) / c.outChannels
	if outFrames == 0 {
		return 0, nil
	}

	sameRate := c.inner.SampleRate() == c.outSampleRate
	sameChannels := c.inner.ChannelCount() == c.outChannels

	if sameRate && sameChannels {
		return c.inner.Write(out, t)
	}

	inChannels := c.inner.ChannelCount()
	inFramesNeeded := outFrames
	if !sameRate {
		inFramesNeeded = int(float64(outFrames)*c.resampledRatio) + 4
	}
	needed := inFramesNeeded * inChannels
	if cap(c.inBuf) < needed {
		c.inBuf = make([]float32, needed)
	}
	inBuf := c.inBuf[:needed]

	n, err := c.inner.Write(inBuf, t)
	if err != nil {
		return 0, err
	}
	inBuf = inBuf[:n*inChannels]

	if sameRate {
		remapChannels(out[:outFrames*c.outChannels], inBuf, inChannels, c.outChannels)
		return min(n, outFrames), nil
	}

	remapped := inBuf
	if !sameChannels {
		remapBuf := make([]float32, n*c.outChannels)
		remapChannels(remapBuf, inBuf, inChannels, c.outChannels)
		remapped = remapBuf
	}

	produced := c.resampler.Resample(out[:outFrames*c.outChannels], remapped, c.outChannels)
	return produced, nil
}

// remapChannels converts an interleaved buffer of inChannels channels
// into one of outChannels channels: mono-to-stereo duplicates, stereo
// (or more) to mono averages, and matching channel counts copy through.
func remapChannels(out, in []float32, inChannels, outChannels int) {
	frames := len(in) / inChannels
	if frames*outChannels > len(out) {
		frames = len(out) / outChannels
	}
	switch {
	case inChannels == outChannels:
		copy(out, in[:frames*inChannels])
	case inChannels == 1 && outChannels > 1:
		for f := 0; f < frames; f++ {
			v := in[f]
			for c := 0; c < outChannels; c++ {
				out[f*outChannels+c] = v
			}
		}
	case outChannels == 1:
		for f := 0; f < frames; f++ {
			var sum float32
			for c := 0; c < inChannels; c++ {
				sum += in[f*inChannels+c]
			}
			out[f] = sum / float32(inChannels)
		}
	default:
		for f := 0; f < frames; f++ {
			for c := 0; c < outChannels; c++ {
				if c < inChannels {
					out[f*outChannels+c] = in[f*inChannels+c]
				} else {
					out[f*outChannels+c] = 0
				}
			}
		}
	}
}
