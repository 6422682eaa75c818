package liveness

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/presence/internal/vision"
)

func detection(x1, y1, x2, y2 float32) vision.Detection {
	return vision.Detection{BBox: [4]float32{x1, y1, x2, y2}, Confidence: 0.9}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func flatLandmarks(n int) [][3]float32 {
	lm := make([][3]float32, n)
	for i := range lm {
		lm[i] = [3]float32{float32(i), float32(i), 0}
	}
	return lm
}

func TestEvaluateFailsOpenOnEmptyCrop(t *testing.T) {
	e := NewEvaluator(0.35, slog.Default())
	img := solidImage(10, 10, color.RGBA{128, 128, 128, 255})

	// Detection entirely outside the frame leaves nothing to score.
	res := e.Evaluate(img, detection(200, 200, 210, 210), flatLandmarks(68))

	assert.True(t, res.Live)
	assert.Equal(t, 1.0, res.Score)
	assert.True(t, res.Degraded)
}

func TestEvaluateDegradesWithoutLandmarks(t *testing.T) {
	e := NewEvaluator(0.35, slog.Default())
	img := solidImage(120, 120, color.RGBA{200, 150, 120, 255})

	res := e.Evaluate(img, detection(10, 10, 110, 110), nil)

	assert.True(t, res.Degraded)
	// The depth signal scores neutral when no landmarks are available.
	assert.Equal(t, 0.5, res.Signals.Depth)
}

func TestEvaluateScoreIsWeightedSum(t *testing.T) {
	e := NewEvaluator(0.35, slog.Default())
	img := solidImage(120, 120, color.RGBA{200, 150, 120, 255})

	res := e.Evaluate(img, detection(10, 10, 110, 110), flatLandmarks(68))

	want := weightDepth*res.Signals.Depth + weightTexture*res.Signals.Texture + weightColor*res.Signals.Color
	assert.InDelta(t, want, res.Score, 1e-9)
	assert.False(t, res.Degraded)
}

func TestDepthScore(t *testing.T) {
	bbox := [4]float32{0, 0, 100, 100}

	// A replayed photo is flat: zero z-variance scores zero.
	assert.Equal(t, 0.0, depthScore(flatLandmarks(68), bbox))

	// Strong z-spread relative to face size saturates the score.
	deep := make([][3]float32, 68)
	for i := range deep {
		z := float32(-20)
		if i%2 == 0 {
			z = 20
		}
		deep[i] = [3]float32{float32(i), float32(i), z}
	}
	assert.Equal(t, 1.0, depthScore(deep, bbox))
}

func TestMoirePenalty(t *testing.T) {
	// Uniform luminance carries no mid-band energy.
	flat := image.NewGray(image.Rect(0, 0, 64, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 64; x++ {
			flat.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	assert.Equal(t, 0.0, moirePenalty(flat))

	// A single-frequency horizontal ripple, the screen-grid signature,
	// concentrates all spectral energy in one bin.
	ripple := image.NewGray(image.Rect(0, 0, 64, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 64; x++ {
			v := 128 + 100*math.Sin(2*math.Pi*float64(x)/8)
			ripple.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, v)))})
		}
	}
	assert.Greater(t, moirePenalty(ripple), 0.8)

	// Too narrow to analyze.
	tiny := image.NewGray(image.Rect(0, 0, 16, 16))
	assert.Equal(t, 0.0, moirePenalty(tiny))
}

func TestSaturate(t *testing.T) {
	assert.Equal(t, 0.0, saturate(-0.5))
	assert.Equal(t, 0.25, saturate(0.25))
	assert.Equal(t, 1.0, saturate(2.0))
}
