package models

import (
	"time"
)

// EmbeddingFormat tags how an IdentityEmbedding was produced so that
// vectors from different encoders are never compared against each other.
type EmbeddingFormat string

const (
	EmbeddingFormatArcFace EmbeddingFormat = "arcface-v1" // primary ONNX encoder, 512-d
	EmbeddingFormatHOG     EmbeddingFormat = "hog-v1"     // gradient-histogram fallback, 36-d
)

// IdentityEmbedding is a person's stored visual signature. Immutable once
// written; re-enrollment replaces the whole record, never merges.
type IdentityEmbedding struct {
	Vector    []float32       `json:"-" db:"embedding"`
	Format    EmbeddingFormat `json:"format" db:"embedding_format"`
	UpdatedAt time.Time       `json:"updated_at" db:"embedding_updated_at"`
}

// Person is an enrollable subject identified by a stable register number.
// Embedding is nil until the person has been enrolled.
type Person struct {
	RegisterNumber string             `json:"register_number" db:"register_number"`
	Name           string             `json:"name" db:"name"`
	Active         bool               `json:"active" db:"active"`
	Embedding      *IdentityEmbedding `json:"embedding,omitempty"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// Enrolled reports whether the person has a stored embedding to match against.
func (p *Person) Enrolled() bool {
	return p.Embedding != nil && len(p.Embedding.Vector) > 0
}
