package decode

import "math"

// converter narrows native f32 samples to the canonical s16 representation.
// Sample rate and channel layout pass through untouched; only the sample
// representation changes.
type converter struct{}

func (converter) convert(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, v := range src {
		switch {
		case v >= 1.0:
			out[i] = math.MaxInt16
		case v <= -1.0:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v * 32767)
		}
	}
	return out
}
