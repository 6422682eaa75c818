package identity

import (
	"math"
	"sort"

	"github.com/your-org/presence/internal/models"
)

// Match is one candidate from a 1:N identification scan.
type Match struct {
	RegisterNumber string
	Name           string
	Confidence     float64
}

// Matcher compares face embeddings under the configured thresholds.
// Confidence is cosine similarity rescaled from [-1,1] to [0,1], so 0.5
// means orthogonal and 1.0 means identical.
type Matcher struct {
	verificationThreshold   float64
	identificationThreshold float64
}

func NewMatcher(verificationThreshold, identificationThreshold float64) *Matcher {
	return &Matcher{
		verificationThreshold:   verificationThreshold,
		identificationThreshold: identificationThreshold,
	}
}

// Verify performs 1:1 verification of a probe against a stored embedding.
// Embeddings of different formats never match.
func (m *Matcher) Verify(probe []float32, probeFormat models.EmbeddingFormat, stored *models.IdentityEmbedding) (float64, bool) {
	if stored == nil || len(stored.Vector) == 0 || stored.Format != probeFormat {
		return 0, false
	}
	confidence := Confidence(probe, stored.Vector)
	return confidence, confidence >= m.verificationThreshold
}

// Identify performs a 1:N scan over enrolled people and returns the best
// match above the identification threshold. Candidates are ordered by
// confidence descending with register number as the deterministic
// tie-break, so equal scores always resolve the same way.
func (m *Matcher) Identify(probe []float32, probeFormat models.EmbeddingFormat, people []models.Person) (Match, bool) {
	var candidates []Match

	for _, p := range people {
		if !p.Enrolled() || p.Embedding.Format != probeFormat {
			continue
		}
		c := Confidence(probe, p.Embedding.Vector)
		if c >= m.identificationThreshold {
			candidates = append(candidates, Match{
				RegisterNumber: p.RegisterNumber,
				Name:           p.Name,
				Confidence:     c,
			})
		}
	}

	if len(candidates) == 0 {
		return Match{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].RegisterNumber < candidates[j].RegisterNumber
	})

	return candidates[0], true
}

// Confidence rescales cosine similarity into [0,1].
func Confidence(a, b []float32) float64 {
	return (cosineSimilarity(a, b) + 1) / 2
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
