package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presence/internal/models"
)

func embedding(format models.EmbeddingFormat, v ...float32) *models.IdentityEmbedding {
	return &models.IdentityEmbedding{Vector: v, Format: format}
}

func person(register string, emb *models.IdentityEmbedding) models.Person {
	return models.Person{RegisterNumber: register, Name: "Person " + register, Active: true, Embedding: emb}
}

func TestConfidenceRescale(t *testing.T) {
	assert.InDelta(t, 1.0, Confidence([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, Confidence([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 0.5, Confidence([]float32{1, 0}, []float32{0, 1}), 1e-6)

	// Length mismatch and zero vectors pin to the floor.
	assert.InDelta(t, 0.0, Confidence([]float32{1, 0}, []float32{1, 0, 0}), 1e-6)
	assert.InDelta(t, 0.0, Confidence([]float32{0, 0}, []float32{1, 0}), 1e-6)
}

func TestVerify(t *testing.T) {
	m := NewMatcher(0.6, 0.5)
	probe := []float32{1, 0, 0}

	conf, ok := m.Verify(probe, models.EmbeddingFormatArcFace, embedding(models.EmbeddingFormatArcFace, 1, 0, 0))
	assert.True(t, ok)
	assert.InDelta(t, 1.0, conf, 1e-6)

	// Orthogonal rescales to 0.5, below the verification threshold.
	conf, ok = m.Verify(probe, models.EmbeddingFormatArcFace, embedding(models.EmbeddingFormatArcFace, 0, 1, 0))
	assert.False(t, ok)
	assert.InDelta(t, 0.5, conf, 1e-6)
}

func TestVerifyRejectsMissingOrForeignFormat(t *testing.T) {
	m := NewMatcher(0.6, 0.5)
	probe := []float32{1, 0, 0}

	conf, ok := m.Verify(probe, models.EmbeddingFormatArcFace, nil)
	assert.False(t, ok)
	assert.Zero(t, conf)

	// An identical vector under a different format never matches.
	conf, ok = m.Verify(probe, models.EmbeddingFormatArcFace, embedding(models.EmbeddingFormatHOG, 1, 0, 0))
	assert.False(t, ok)
	assert.Zero(t, conf)
}

func TestIdentifyPicksBestMatch(t *testing.T) {
	m := NewMatcher(0.6, 0.5)
	people := []models.Person{
		person("2301001", embedding(models.EmbeddingFormatArcFace, 0, 1, 0)),
		person("2301002", embedding(models.EmbeddingFormatArcFace, 1, 0, 0)),
		person("2301003", embedding(models.EmbeddingFormatArcFace, 0.9, 0.1, 0)),
	}

	match, ok := m.Identify([]float32{1, 0, 0}, models.EmbeddingFormatArcFace, people)
	require.True(t, ok)
	assert.Equal(t, "2301002", match.RegisterNumber)
	assert.InDelta(t, 1.0, match.Confidence, 1e-6)
}

func TestIdentifyTieBreaksOnRegister(t *testing.T) {
	m := NewMatcher(0.6, 0.5)
	// Identical embeddings score identically; the lower register must win
	// every time regardless of roster order.
	people := []models.Person{
		person("2301009", embedding(models.EmbeddingFormatArcFace, 1, 0, 0)),
		person("2301001", embedding(models.EmbeddingFormatArcFace, 1, 0, 0)),
		person("2301005", embedding(models.EmbeddingFormatArcFace, 1, 0, 0)),
	}

	for i := 0; i < 5; i++ {
		match, ok := m.Identify([]float32{1, 0, 0}, models.EmbeddingFormatArcFace, people)
		require.True(t, ok)
		assert.Equal(t, "2301001", match.RegisterNumber)
	}
}

func TestIdentifyNoCandidates(t *testing.T) {
	m := NewMatcher(0.6, 0.5)
	people := []models.Person{
		person("2301001", embedding(models.EmbeddingFormatArcFace, -1, 0, 0)), // opposite: conf 0
		person("2301002", nil),                                                // not enrolled
		person("2301003", embedding(models.EmbeddingFormatHOG, 1, 0, 0)),      // wrong format
	}

	_, ok := m.Identify([]float32{1, 0, 0}, models.EmbeddingFormatArcFace, people)
	assert.False(t, ok)
}
