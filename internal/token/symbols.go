package token

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// SymbolReader decodes a machine-readable symbol (QR or 1-D barcode) from
// an image. Implementations return an error when no symbol is found.
type SymbolReader interface {
	Decode(img image.Image) (string, error)
}

var errNoSymbol = errors.New("no symbol found")

// zxingReader tries the symbol formats ID tokens are printed with, in
// order of how often they appear in practice.
type zxingReader struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewSymbolReader builds the default multi-format reader.
func NewSymbolReader() SymbolReader {
	return &zxingReader{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (r *zxingReader) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}

	for _, reader := range r.readers {
		result, err := reader.Decode(bmp, r.hints)
		if err == nil && result.GetText() != "" {
			return result.GetText(), nil
		}
		reader.Reset()
	}
	return "", errNoSymbol
}
