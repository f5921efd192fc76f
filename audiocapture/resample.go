package audiocapture

import "math"

// resampleHalfTaps is the number of zero crossings on each side of the
// interpolation kernel.
const resampleHalfTaps = 16

// Downmix averages interleaved channels into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples between rates with a Blackman-windowed sinc
// kernel. When downsampling, the kernel cutoff follows the target Nyquist.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(toRate) / float64(fromRate)
	cutoff := math.Min(1, ratio)
	width := resampleHalfTaps / cutoff
	outLen := int(math.Round(float64(len(samples)) * ratio))
	out := make([]float32, outLen)

	for i := range out {
		center := float64(i) / ratio
		lo := max(int(math.Floor(center-width)), 0)
		hi := min(int(math.Ceil(center+width)), len(samples)-1)

		var sum, wsum float64
		for j := lo; j <= hi; j++ {
			x := float64(j) - center
			w := cutoff * sinc(cutoff*x) * blackman(x, width)
			sum += float64(samples[j]) * w
			wsum += w
		}
		if wsum != 0 {
			out[i] = float32(sum / wsum)
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func blackman(x, width float64) float64 {
	if math.Abs(x) >= width {
		return 0
	}
	n := (x/width + 1) / 2
	return 0.42 - 0.5*math.Cos(2*math.Pi*n) + 0.08*math.Cos(4*math.Pi*n)
}
