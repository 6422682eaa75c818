package liveness

import (
	"image"
	"log/slog"
	"math"

	"github.com/your-org/presence/internal/imaging"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/vision"
)

// Signal weights. Depth dominates because it is the hardest signal to spoof
// with a flat replay.
const (
	weightDepth   = 0.5
	weightTexture = 0.3
	weightColor   = 0.2
)

// Signals are the per-check scores in [0,1] that compose the final score.
type Signals struct {
	Depth   float64 `json:"depth"`
	Texture float64 `json:"texture"`
	Color   float64 `json:"color"`
}

// Result is the liveness verdict for one face crop. When the evaluator
// cannot run (no crop, no landmarks) it fails open: Live=true, Score=1.0,
// Degraded=true. Callers that require a hard liveness guarantee must check
// Degraded themselves.
type Result struct {
	Live     bool    `json:"live"`
	Score    float64 `json:"score"`
	Degraded bool    `json:"degraded"`
	Signals  Signals `json:"signals"`
}

// Evaluator scores anti-spoofing signals against a single threshold.
type Evaluator struct {
	threshold float64
	logger    *slog.Logger
}

func NewEvaluator(threshold float64, logger *slog.Logger) *Evaluator {
	return &Evaluator{threshold: threshold, logger: logger}
}

// Threshold returns the configured decision boundary.
func (e *Evaluator) Threshold() float64 {
	return e.threshold
}

// Evaluate runs the three checks over the detected face. landmarks may be
// nil when the landmark predictor is unavailable; the depth signal then
// scores neutral and the result is marked degraded.
func (e *Evaluator) Evaluate(img image.Image, face vision.Detection, landmarks [][3]float32) Result {
	crop := vision.CropFace(img, face.BBox, 0.1)
	if crop == nil {
		e.logger.Warn("liveness evaluation skipped, empty face crop")
		observability.DegradedMode.WithLabelValues("liveness").Inc()
		return Result{Live: true, Score: 1.0, Degraded: true}
	}

	degraded := false

	depth := 0.5
	if len(landmarks) > 0 {
		depth = depthScore(landmarks, face.BBox)
	} else {
		degraded = true
	}

	texture := textureScore(crop)
	color := colorScore(crop)

	score := weightDepth*depth + weightTexture*texture + weightColor*color

	if degraded {
		observability.DegradedMode.WithLabelValues("liveness").Inc()
	}

	return Result{
		Live:     score >= e.threshold,
		Score:    score,
		Degraded: degraded,
		Signals:  Signals{Depth: depth, Texture: texture, Color: color},
	}
}

// depthScore measures z-axis spread of the 3-D landmarks relative to the
// face size. Flat replays collapse to near-zero depth variance.
func depthScore(landmarks [][3]float32, bbox [4]float32) float64 {
	faceSize := math.Max(float64(bbox[2]-bbox[0]), float64(bbox[3]-bbox[1]))
	if faceSize <= 0 {
		return 0.5
	}

	var mean float64
	for _, p := range landmarks {
		mean += float64(p[2])
	}
	mean /= float64(len(landmarks))

	var variance float64
	for _, p := range landmarks {
		d := float64(p[2]) - mean
		variance += d * d
	}
	variance /= float64(len(landmarks))

	// Normalize spread by face size so the score is scale invariant.
	spread := math.Sqrt(variance) / faceSize
	return saturate(spread / 0.08)
}

// textureScore combines high-frequency energy with a Moiré periodicity
// penalty. Printed photos are too smooth, screens show grid interference.
func textureScore(crop image.Image) float64 {
	gray := imaging.ToGray(crop)

	lapVar := imaging.LaplacianVariance(gray)
	sharpness := saturate(lapVar / 250)

	penalty := moirePenalty(gray)

	return sharpness * (1 - penalty)
}

// colorScore checks for natural skin tones. A skin hue sits in the 0-30
// degree band; saturation spread separates live skin from the flat color
// response of a screen.
func colorScore(crop image.Image) float64 {
	bounds := crop.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	skin := 0
	sats := make([]float64, 0, total)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := crop.At(x, y).RGBA()
			hue, sat, val := imaging.RGBToHSV(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			sats = append(sats, sat)
			if hue <= 30 && sat >= 0.15 && sat <= 0.75 && val >= 0.2 {
				skin++
			}
		}
	}

	skinFrac := float64(skin) / float64(total)

	var mean float64
	for _, s := range sats {
		mean += s
	}
	mean /= float64(len(sats))
	var variance float64
	for _, s := range sats {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(sats))

	return 0.6*saturate(skinFrac/0.4) + 0.4*saturate(variance/0.02)
}

func saturate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
