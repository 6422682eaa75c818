package liveness

import (
	"image"

	"gonum.org/v1/gonum/dsp/fourier"
)

// moirePenalty estimates screen-replay interference. The row-averaged
// luminance profile of a face shown on a display carries a strong periodic
// component from the pixel grid; live skin does not. Returns a penalty in
// [0,1] proportional to how much spectral energy concentrates in a single
// mid-band frequency.
func moirePenalty(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w < 32 || h < 2 {
		return 0
	}

	// Column means collapse the crop into a 1-D horizontal profile.
	profile := make([]float64, w)
	for x := 0; x < w; x++ {
		var sum float64
		for y := 0; y < h; y++ {
			sum += float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
		}
		profile[x] = sum / float64(h)
	}

	// Remove DC before the transform.
	var mean float64
	for _, v := range profile {
		mean += v
	}
	mean /= float64(w)
	for i := range profile {
		profile[i] -= mean
	}

	fft := fourier.NewFFT(w)
	coeffs := fft.Coefficients(nil, profile)

	// Mid-band only: skip low frequencies (face structure) and the tail.
	lo := len(coeffs) / 8
	hi := len(coeffs) * 7 / 8
	if hi <= lo {
		return 0
	}

	var total, peak float64
	for i := lo; i < hi; i++ {
		mag := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		total += mag
		if mag > peak {
			peak = mag
		}
	}
	if total == 0 {
		return 0
	}

	ratio := peak / total
	// A flat spectrum has ratio near 1/N; a single dominant spike pushes it
	// toward 1. Scale so a clearly periodic profile costs most of the score.
	penalty := (ratio - 0.1) / 0.5
	return saturate(penalty)
}
