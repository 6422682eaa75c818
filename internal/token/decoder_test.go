package token

import (
	"errors"
	"image"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presence/internal/models"
)

// stubSymbolReader fails a fixed number of times before succeeding, which
// pins down exactly which cascade stage produces the decode. Per attempt
// counts: direct 2, enhanced 3, region 2, multiscale 3, rotation 6.
type stubSymbolReader struct {
	failFirst int
	calls     int
	payload   string
}

func (s *stubSymbolReader) Decode(img image.Image) (string, error) {
	s.calls++
	if s.calls <= s.failFirst {
		return "", errors.New("no symbol")
	}
	return s.payload, nil
}

type stubRecognizer struct {
	text string
	err  error
}

func (s *stubRecognizer) Recognize(img image.Image) (string, error) { return s.text, s.err }
func (s *stubRecognizer) Close() error                              { return nil }

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 64))
}

func TestDecodeStageAttribution(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		strategy  models.DecodeStrategy
	}{
		{"direct raw", 0, models.StrategyDirect},
		{"direct grayscale", 1, models.StrategyDirect},
		{"enhanced first variant", 2, models.StrategyEnhanced},
		{"enhanced last variant", 4, models.StrategyEnhanced},
		{"region", 5, models.StrategyRegion},
		{"multiscale", 7, models.StrategyMultiScale},
		{"rotation", 10, models.StrategyRotation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &stubSymbolReader{failFirst: tt.failFirst, payload: "2301456"}
			d := NewDecoder(reader, nil, slog.Default())

			payload, strategy, err := d.Decode(testFrame())
			require.NoError(t, err)
			assert.Equal(t, "2301456", payload)
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestDecodeFallsBackToOCR(t *testing.T) {
	reader := &stubSymbolReader{failFirst: 1000}
	d := NewDecoder(reader, &stubRecognizer{text: "2301456@example.edu"}, slog.Default())

	payload, strategy, err := d.Decode(testFrame())
	require.NoError(t, err)
	assert.Equal(t, "2301456@example.edu", payload)
	assert.Equal(t, models.StrategyOCR, strategy)
}

func TestDecodeUnreadable(t *testing.T) {
	reader := &stubSymbolReader{failFirst: 1000}
	d := NewDecoder(reader, &stubRecognizer{err: errors.New("tesseract exploded")}, slog.Default())

	_, _, err := d.Decode(testFrame())
	assert.ErrorIs(t, err, ErrTokenUnreadable)
}

func TestDecodeUnreadableWithoutOCR(t *testing.T) {
	reader := &stubSymbolReader{failFirst: 1000}
	d := NewDecoder(reader, nil, slog.Default())

	_, _, err := d.Decode(testFrame())
	assert.ErrorIs(t, err, ErrTokenUnreadable)

	// All symbol stages ran: 2 direct + 3 enhanced + 2 region + 3
	// multiscale + 6 rotation.
	assert.Equal(t, 16, reader.calls)
}
