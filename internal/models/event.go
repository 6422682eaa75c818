package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind selects the notifier template and NATS subject suffix.
type NotificationKind string

const (
	NotifyLate            NotificationKind = "late"
	NotifyReviewRequired  NotificationKind = "review_required"
	NotifyTokenUnreadable NotificationKind = "token_unreadable"
)

// NotificationEvent is published to JetStream for the notifier worker.
// Delivery is idempotent-safe to retry: the worker keys on OutcomeID+Kind.
type NotificationEvent struct {
	Kind           NotificationKind `json:"kind"`
	OutcomeID      uuid.UUID        `json:"outcome_id"`
	RegisterNumber string           `json:"register_number"`
	PersonName     string           `json:"person_name,omitempty"`
	Status         AttendanceStatus `json:"status"`
	CapturedAt     time.Time        `json:"captured_at"`
}

// AttendanceEvent is the payload broadcast on the WebSocket hub whenever an
// outcome is created or a review is resolved.
type AttendanceEvent struct {
	Type               string             `json:"type"` // attendance_marked | review_resolved
	OutcomeID          uuid.UUID          `json:"outcome_id"`
	RegisterNumber     string             `json:"register_number"`
	Status             AttendanceStatus   `json:"status"`
	Method             VerificationMethod `json:"verification_method"`
	MatchConfidence    float32            `json:"match_confidence"`
	LivenessConfidence float32            `json:"liveness_confidence"`
	CapturedAt         time.Time          `json:"captured_at"`
}
