package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerAction names an auditable transition.
type LedgerAction string

const (
	LedgerOutcomeCreated LedgerAction = "outcome_created"
	LedgerReviewOpened   LedgerAction = "review_opened"
	LedgerReviewResolved LedgerAction = "review_resolved"
	LedgerPersonEnrolled LedgerAction = "person_enrolled"
)

// LedgerEntry is one link of the append-only audit chain. EntryHash covers
// the entry's own fields plus PrevHash, so any retroactive edit breaks
// every later link.
type LedgerEntry struct {
	Seq       int64        `json:"seq" db:"seq"`
	OutcomeID *uuid.UUID   `json:"outcome_id,omitempty" db:"outcome_id"`
	Action    LedgerAction `json:"action" db:"action"`
	Actor     string       `json:"actor" db:"actor"`
	Details   []byte       `json:"details" db:"details"`
	PrevHash  string       `json:"prev_hash" db:"prev_hash"`
	EntryHash string       `json:"entry_hash" db:"entry_hash"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
