package token

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/your-org/presence/internal/models"
)

// Extractor turns a raw decoded payload into a tagged token value by
// applying the register-number rules in strictest-first order.
type Extractor struct {
	canonical int
	min       int
	max       int
	emailRe   *regexp.Regexp
	runRe     *regexp.Regexp
}

// NewExtractor builds the extraction rules for the configured register
// number lengths.
func NewExtractor(canonical, min, max int) *Extractor {
	return &Extractor{
		canonical: canonical,
		min:       min,
		max:       max,
		emailRe:   regexp.MustCompile(fmt.Sprintf(`(\d{%d})@`, canonical)),
		runRe:     regexp.MustCompile(fmt.Sprintf(`\b(\d{%d})\b`, canonical)),
	}
}

// Extract classifies the payload. The cascade strategy that produced the
// payload travels along unchanged.
//
// Rules, strictest first:
//  1. payload is exactly a canonical-length digit string
//  2. payload is a digit string inside the accepted length band
//  3. payload contains an email address whose local part starts with a
//     canonical-length register number
//  4. payload contains a standalone canonical-length digit run (OCR noise
//     around a readable number)
//
// Anything else stays raw text for the reviewer to look at.
func (e *Extractor) Extract(payload string, strategy models.DecodeStrategy) models.DecodedToken {
	trimmed := strings.TrimSpace(payload)

	if isDigits(trimmed) {
		if len(trimmed) == e.canonical {
			return models.DecodedToken{Kind: models.TokenRegisterNumber, Value: trimmed, Strategy: strategy}
		}
		if len(trimmed) >= e.min && len(trimmed) <= e.max {
			return models.DecodedToken{Kind: models.TokenRegisterNumber, Value: trimmed, Strategy: strategy}
		}
	}

	if m := e.emailRe.FindStringSubmatch(trimmed); m != nil {
		return models.DecodedToken{Kind: models.TokenEmailEmbedded, Value: m[1], Strategy: strategy}
	}

	if m := e.runRe.FindStringSubmatch(trimmed); m != nil {
		return models.DecodedToken{Kind: models.TokenRegisterNumber, Value: m[1], Strategy: strategy}
	}

	return models.DecodedToken{Kind: models.TokenRawText, Value: trimmed, Strategy: strategy}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
