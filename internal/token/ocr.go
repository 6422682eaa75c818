package token

import (
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/your-org/presence/internal/imaging"
)

// TextRecognizer reads printed text from an image. It is the last resort
// of the decode cascade, for tokens whose symbol is damaged but whose
// human-readable line survives.
type TextRecognizer interface {
	Recognize(img image.Image) (string, error)
	Close() error
}

// tesseractRecognizer wraps a gosseract client. The client is not safe for
// concurrent use; the decoder serializes access.
type tesseractRecognizer struct {
	client *gosseract.Client
}

// NewTextRecognizer creates a Tesseract-backed recognizer restricted to
// the characters that appear on ID tokens.
func NewTextRecognizer() (TextRecognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetWhitelist("0123456789@.abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-_"); err != nil {
		client.Close()
		return nil, fmt.Errorf("configure ocr whitelist: %w", err)
	}
	return &tesseractRecognizer{client: client}, nil
}

func (t *tesseractRecognizer) Recognize(img image.Image) (string, error) {
	data := imaging.EncodeJPEG(img, 95)
	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set ocr image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (t *tesseractRecognizer) Close() error {
	return t.client.Close()
}
