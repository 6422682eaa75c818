package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the terminal status of a day's outcome.
type AttendanceStatus string

const (
	StatusPresent  AttendanceStatus = "present"
	StatusLate     AttendanceStatus = "late"
	StatusPending  AttendanceStatus = "pending"
	StatusRejected AttendanceStatus = "rejected"
)

// VerificationMethod records which factors backed the outcome.
type VerificationMethod string

const (
	MethodTokenFace VerificationMethod = "token_face"
	MethodFaceOnly  VerificationMethod = "face_only"
	MethodManual    VerificationMethod = "manual"
)

// ReviewState tracks the human-in-the-loop state of an outcome.
type ReviewState string

const (
	ReviewVerified         ReviewState = "verified"
	ReviewPending          ReviewState = "pending"
	ReviewManuallyVerified ReviewState = "manually_verified"
	ReviewRejected         ReviewState = "rejected"
)

// UnidentifiedRegister is the placeholder owner for outcomes where no
// enrolled person cleared the identification threshold.
const UnidentifiedRegister = "UNKNOWN"

// AttendanceOutcome is the single source of truth for a (person, day) pair.
// At most one row exists per pair; the storage layer enforces this with a
// unique constraint and an atomic check-then-create.
type AttendanceOutcome struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	RegisterNumber     string             `json:"register_number" db:"register_number"`
	Day                time.Time          `json:"day" db:"day"` // calendar date, midnight UTC
	CapturedAt         time.Time          `json:"captured_at" db:"captured_at"`
	Status             AttendanceStatus   `json:"status" db:"status"`
	Method             VerificationMethod `json:"verification_method" db:"verification_method"`
	MatchConfidence    float32            `json:"match_confidence" db:"match_confidence"`
	LivenessConfidence float32            `json:"liveness_confidence" db:"liveness_confidence"`
	ReviewState        ReviewState        `json:"review_state" db:"review_state"`
	ReviewedBy         *string            `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes        *string            `json:"review_notes,omitempty" db:"review_notes"`
	Notified           bool               `json:"notified" db:"notified"`
	CaptureKey         string             `json:"capture_key,omitempty" db:"capture_key"` // MinIO key of the capture image
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// ReviewResolution is the one-shot terminal decision on a PendingReview.
type ReviewResolution string

const (
	ResolutionApproved ReviewResolution = "approved"
	ResolutionRejected ReviewResolution = "rejected"
)

// PendingReview is a satellite record requesting a change to its parent
// outcome. It never mutates the outcome itself; the workflow does.
// Lifecycle: created at classification time, exactly one resolution, never
// reopened.
type PendingReview struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	OutcomeID      uuid.UUID         `json:"outcome_id" db:"outcome_id"`
	BestGuess      string            `json:"best_guess" db:"best_guess"` // register number or UnidentifiedRegister
	Confidence     float32           `json:"confidence" db:"confidence"`
	Notes          string            `json:"notes" db:"notes"`
	Resolution     *ReviewResolution `json:"resolution,omitempty" db:"resolution"`
	ResolvedBy     *string           `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedNotes  *string           `json:"resolved_notes,omitempty" db:"resolved_notes"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// Resolved reports whether the review has reached its terminal state.
func (r *PendingReview) Resolved() bool {
	return r.Resolution != nil
}
