package source

// LinearResampler is the engine's default Resampler: plain linear
// interpolation between adjacent input frames. It stands in for the
// resampling algorithm itself, which this engine treats as an external,
// swappable concern (see the Resampler interface).
type LinearResampler struct {
	inRate, outRate int
}

// NewLinearResampler creates a resampler converting from inRate to
// outRate, both in Hz.
func NewLinearResampler(inRate, outRate int) *LinearResampler {
	return &LinearResampler{inRate: inRate, outRate: outRate}
}

// Resample implements Resampler.
func (r *LinearResampler) Resample(out, in []float32, channels int) int {
	inFrames := len(in) / channels
	if inFrames < 2 {
		return 0
	}
	ratio := float64(r.inRate) / float64(r.outRate)
	outFrames := len(out) / channels

	produced := 0
	for f := 0; f < outFrames; f++ {
		srcPos := float64(f) * ratio
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			break
		}
		frac := float32(srcPos - float64(i0))
		for c := 0; c < channels; c++ {
			a := in[i0*channels+c]
			b := in[(i0+1)*channels+c]
			out[f*channels+c] = a + (b-a)*frac
		}
		produced++
	}
	return produced
}

// PassthroughStretcher is the engine's default Stretcher: it changes
// playback rate by resampling (which also shifts pitch), a placeholder
// for the pitch-preserving time-stretch algorithm this engine treats as
// an external, swappable concern (see the Stretcher interface).
type PassthroughStretcher struct{}

// Stretch implements Stretcher by resampling in at the inverse of
// speed: speed 2.0 (play twice as fast) consumes input twice as
// quickly, changing pitch along with tempo.
func (PassthroughStretcher) Stretch(out, in []float32, channels int, speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	inFrames := len(in) / channels
	outFrames := len(out) / channels
	produced := 0
	for f := 0; f < outFrames; f++ {
		srcPos := float64(f) * speed
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			break
		}
		frac := float32(srcPos - float64(i0))
		for c := 0; c < channels; c++ {
			a := in[i0*channels+c]
			b := in[(i0+1)*channels+c]
			out[f*channels+c] = a + (b-a)*frac
		}
		produced++
	}
	return produced
}
