package token

import (
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/your-org/presence/internal/imaging"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
)

// ErrTokenUnreadable means every cascade stage failed to produce a payload.
var ErrTokenUnreadable = errors.New("token unreadable")

// rotationAngles are the small tilts a hand-held token commonly shows.
var rotationAngles = []float64{-15, -10, -5, 5, 10, 15}

// scaleFactors for the multiscale stage. Upscaling first helps small
// symbols; downscaling helps frames where the token fills the view.
var scaleFactors = []float64{1.5, 2.0, 0.5}

// Decoder runs the decode cascade over a capture frame. Stages are ordered
// cheapest first and the first success wins; the OCR stage only runs when
// every symbol stage has failed.
type Decoder struct {
	symbols SymbolReader
	ocr     TextRecognizer
	logger  *slog.Logger

	mu sync.Mutex // the OCR client is single-threaded
}

// NewDecoder assembles the cascade. ocr may be nil, which simply disables
// the final stage.
func NewDecoder(symbols SymbolReader, ocr TextRecognizer, logger *slog.Logger) *Decoder {
	return &Decoder{symbols: symbols, ocr: ocr, logger: logger}
}

// Decode extracts the token payload from a frame. Returns the raw payload
// and the strategy that produced it, or ErrTokenUnreadable.
func (d *Decoder) Decode(img image.Image) (string, models.DecodeStrategy, error) {
	gray := imaging.ToGray(img)

	type stage struct {
		strategy models.DecodeStrategy
		run      func() (string, bool)
	}

	stages := []stage{
		{models.StrategyDirect, func() (string, bool) { return d.tryDirect(img, gray) }},
		{models.StrategyEnhanced, func() (string, bool) { return d.tryEnhanced(gray) }},
		{models.StrategyRegion, func() (string, bool) { return d.tryRegion(gray) }},
		{models.StrategyMultiScale, func() (string, bool) { return d.tryMultiScale(gray) }},
		{models.StrategyRotation, func() (string, bool) { return d.tryRotation(gray) }},
		{models.StrategyOCR, func() (string, bool) { return d.tryOCR(gray) }},
	}

	for _, s := range stages {
		if payload, ok := s.run(); ok {
			observability.TokenDecodes.WithLabelValues(string(s.strategy)).Inc()
			d.logger.Debug("token decoded", "strategy", s.strategy)
			return payload, s.strategy, nil
		}
	}

	observability.TokenDecodes.WithLabelValues("none").Inc()
	return "", "", ErrTokenUnreadable
}

// tryDirect attempts the raw frame and its grayscale conversion.
func (d *Decoder) tryDirect(img image.Image, gray *image.Gray) (string, bool) {
	if payload, ok := d.trySymbol(img); ok {
		return payload, true
	}
	return d.trySymbol(gray)
}

func (d *Decoder) trySymbol(img image.Image) (string, bool) {
	payload, err := d.symbols.Decode(img)
	if err != nil || payload == "" {
		return "", false
	}
	return payload, true
}

// tryEnhanced recovers symbols washed out by glare or low contrast:
// histogram equalization, then sharpening, then adaptive binarization.
func (d *Decoder) tryEnhanced(gray *image.Gray) (string, bool) {
	eq := imaging.EqualizeHist(gray)
	if payload, ok := d.trySymbol(eq); ok {
		return payload, true
	}
	if payload, ok := d.trySymbol(imaging.Sharpen(eq)); ok {
		return payload, true
	}
	return d.trySymbol(imaging.AdaptiveThreshold(eq, 31, 5))
}

// tryRegion crops to the bottom of the frame where a held-up token sits.
func (d *Decoder) tryRegion(gray *image.Gray) (string, bool) {
	region := imaging.BottomRegion(gray, 0.4)
	if payload, ok := d.trySymbol(region); ok {
		return payload, true
	}
	return d.trySymbol(imaging.EqualizeHist(region))
}

func (d *Decoder) tryMultiScale(gray *image.Gray) (string, bool) {
	bounds := gray.Bounds()
	for _, f := range scaleFactors {
		w := int(float64(bounds.Dx()) * f)
		h := int(float64(bounds.Dy()) * f)
		if w < 32 || h < 32 {
			continue
		}
		if payload, ok := d.trySymbol(imaging.ResizeGray(gray, w, h)); ok {
			return payload, true
		}
	}
	return "", false
}

func (d *Decoder) tryRotation(gray *image.Gray) (string, bool) {
	for _, angle := range rotationAngles {
		if payload, ok := d.trySymbol(imaging.Rotate(gray, angle)); ok {
			return payload, true
		}
	}
	return "", false
}

func (d *Decoder) tryOCR(gray *image.Gray) (string, bool) {
	if d.ocr == nil {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Bottom region first, where the printed line usually is.
	for _, img := range []image.Image{imaging.BottomRegion(gray, 0.4), gray} {
		text, err := d.ocr.Recognize(img)
		if err != nil {
			d.logger.Warn("ocr failed", "error", err)
			continue
		}
		if text != "" {
			return text, true
		}
	}
	return "", false
}
