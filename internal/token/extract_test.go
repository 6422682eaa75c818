package token

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/presence/internal/models"
)

func TestExtractRegisterNumbers(t *testing.T) {
	e := NewExtractor(7, 5, 9)

	tests := []struct {
		name    string
		payload string
		kind    models.TokenKind
		value   string
	}{
		{"canonical length", "2301456", models.TokenRegisterNumber, "2301456"},
		{"canonical with whitespace", "  2301456\n", models.TokenRegisterNumber, "2301456"},
		{"short side of band", "23014", models.TokenRegisterNumber, "23014"},
		{"long side of band", "230145678", models.TokenRegisterNumber, "230145678"},
		{"below band", "2301", models.TokenRawText, "2301"},
		{"above band", "2301456789", models.TokenRawText, "2301456789"},
		{"email local part", "2301456@students.example.edu", models.TokenEmailEmbedded, "2301456"},
		{"email inside text", "mailto:2301456@example.org subject", models.TokenEmailEmbedded, "2301456"},
		{"digit run in ocr noise", "ID 2301456 STUDENT", models.TokenRegisterNumber, "2301456"},
		{"letters mixed in", "A2301456", models.TokenRawText, "A2301456"},
		{"empty payload", "", models.TokenRawText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.payload, models.StrategyDirect)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.value, got.Value)
			assert.Equal(t, models.StrategyDirect, got.Strategy)
		})
	}
}

func TestExtractKeepsStrategy(t *testing.T) {
	e := NewExtractor(7, 5, 9)
	got := e.Extract("2301456", models.StrategyRotation)
	assert.Equal(t, models.StrategyRotation, got.Strategy)
}

func TestExtractEmailNeedsCanonicalLength(t *testing.T) {
	e := NewExtractor(7, 5, 9)
	// A six digit local part is not a register number.
	got := e.Extract("230145@example.org", models.StrategyOCR)
	assert.Equal(t, models.TokenRawText, got.Kind)
}
