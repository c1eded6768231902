package param

import "math"

// eulerDiv2 is e/2, the base used by ApplyScaling's exponent curve.
const eulerDiv2 = math.E / 2.0

// ApplyScaling bends a linear progress value in [0,1] into a convex or
// concave curve controlled by scaling in [-1,1]. scaling == 0 leaves
// value untouched (linear). Negative scaling bows the curve toward slow
// start/fast finish (using a power >1 directly); positive scaling bows
// it the other way by applying the same power to the complement and
// re-complementing. This is the curve the AHDSR envelope applies to its
// Attack/Decay/Release stages.
func ApplyScaling(value, scaling float64) float64 {
	if scaling == 0 || value == 0 {
		return value
	}
	// The envelope's sign convention treats positive "scaling" as
	// bowing toward the far side of the stage; inverting here keeps
	// the exponent math below expressed the same way regardless of
	// which side it bows toward.
	scaling = -scaling
	if scaling > 0 {
		return math.Pow(value, 1.0+math.Pow(scaling, eulerDiv2)*16.0)
	}
	return 1.0 - math.Pow(1.0-value, 1.0+math.Pow(-scaling, eulerDiv2)*16.0)
}
