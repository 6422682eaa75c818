package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
)

// --- Persons ---

type CreatePersonRequest struct {
	RegisterNumber string `json:"register_number" binding:"required"`
	Name           string `json:"name" binding:"required"`
}

type PersonResponse struct {
	RegisterNumber  string     `json:"register_number"`
	Name            string     `json:"name"`
	Active          bool       `json:"active"`
	Enrolled        bool       `json:"enrolled"`
	EmbeddingFormat string     `json:"embedding_format,omitempty"`
	EnrolledAt      *time.Time `json:"enrolled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func PersonFromModel(p *models.Person) PersonResponse {
	resp := PersonResponse{
		RegisterNumber: p.RegisterNumber,
		Name:           p.Name,
		Active:         p.Active,
		Enrolled:       p.Enrolled() || (p.Embedding != nil && p.Embedding.Format != ""),
		CreatedAt:      p.CreatedAt,
	}
	if p.Embedding != nil {
		resp.EmbeddingFormat = string(p.Embedding.Format)
		t := p.Embedding.UpdatedAt
		resp.EnrolledAt = &t
	}
	return resp
}

// --- Attendance ---

type OutcomeResponse struct {
	ID                 uuid.UUID `json:"id"`
	RegisterNumber     string    `json:"register_number"`
	Day                string    `json:"day"`
	CapturedAt         time.Time `json:"captured_at"`
	Status             string    `json:"status"`
	Method             string    `json:"verification_method"`
	MatchConfidence    float32   `json:"match_confidence"`
	LivenessConfidence float32   `json:"liveness_confidence"`
	ReviewState        string    `json:"review_state"`
	ReviewedBy         *string   `json:"reviewed_by,omitempty"`
	ReviewNotes        *string   `json:"review_notes,omitempty"`
	Notified           bool      `json:"notified"`
	CreatedAt          time.Time `json:"created_at"`
}

func OutcomeFromModel(o *models.AttendanceOutcome) OutcomeResponse {
	return OutcomeResponse{
		ID:                 o.ID,
		RegisterNumber:     o.RegisterNumber,
		Day:                o.Day.Format("2006-01-02"),
		CapturedAt:         o.CapturedAt,
		Status:             string(o.Status),
		Method:             string(o.Method),
		MatchConfidence:    o.MatchConfidence,
		LivenessConfidence: o.LivenessConfidence,
		ReviewState:        string(o.ReviewState),
		ReviewedBy:         o.ReviewedBy,
		ReviewNotes:        o.ReviewNotes,
		Notified:           o.Notified,
		CreatedAt:          o.CreatedAt,
	}
}

// MarkResponse reports what a capture produced. Outcome is absent for a
// mismatch, where nothing is recorded and the person should retry.
type MarkResponse struct {
	Case    string           `json:"case"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
	Review  *ReviewResponse  `json:"review,omitempty"`
}

// --- Reviews ---

type ReviewResponse struct {
	ID         uuid.UUID  `json:"id"`
	OutcomeID  uuid.UUID  `json:"outcome_id"`
	BestGuess  string     `json:"best_guess"`
	Confidence float32    `json:"confidence"`
	Notes      string     `json:"notes"`
	Resolution *string    `json:"resolution,omitempty"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ReviewFromModel(r *models.PendingReview) ReviewResponse {
	resp := ReviewResponse{
		ID:         r.ID,
		OutcomeID:  r.OutcomeID,
		BestGuess:  r.BestGuess,
		Confidence: r.Confidence,
		Notes:      r.Notes,
		ResolvedBy: r.ResolvedBy,
		ResolvedAt: r.ResolvedAt,
		CreatedAt:  r.CreatedAt,
	}
	if r.Resolution != nil {
		res := string(*r.Resolution)
		resp.Resolution = &res
	}
	return resp
}

// ResolveReviewRequest carries the one-shot review decision. RegisterNumber
// lets the reviewer name the true person when the best guess was wrong;
// empty keeps the best guess.
type ResolveReviewRequest struct {
	Resolution     string `json:"resolution" binding:"required,oneof=approved rejected"`
	ResolvedBy     string `json:"resolved_by" binding:"required"`
	Notes          string `json:"notes" binding:"required"`
	RegisterNumber string `json:"register_number"`
}

// --- Ledger ---

type LedgerVerifyResponse struct {
	Intact    bool  `json:"intact"`
	BrokenSeq int64 `json:"broken_seq,omitempty"`
	Entries   int   `json:"entries"`
}
