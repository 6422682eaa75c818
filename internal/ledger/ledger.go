package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
)

// Store is the persistence the ledger needs.
type Store interface {
	AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
	LastLedgerHash(ctx context.Context) (string, error)
	ListLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)
}

// Ledger appends hash-chained audit entries. Each entry's hash covers the
// previous entry's hash, so the chain proves no record was edited or
// removed after the fact. Appends are serialized; chain links cannot be
// computed concurrently.
type Ledger struct {
	store Store
	mu    sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends one entry. details must marshal to JSON.
func (l *Ledger) Record(ctx context.Context, outcomeID *uuid.UUID, action models.LedgerAction, actor string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal ledger details: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.store.LastLedgerHash(ctx)
	if err != nil {
		return fmt.Errorf("read chain head: %w", err)
	}

	e := &models.LedgerEntry{
		OutcomeID: outcomeID,
		Action:    action,
		Actor:     actor,
		Details:   payload,
		PrevHash:  prev,
		EntryHash: entryHash(prev, action, actor, outcomeID, payload),
	}
	return l.store.AppendLedgerEntry(ctx, e)
}

// Verify walks the whole chain and recomputes every link. Returns the
// sequence number of the first broken entry, or 0 when the chain is intact.
func (l *Ledger) Verify(ctx context.Context) (int64, error) {
	entries, err := l.store.ListLedgerEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}

	prev := ""
	for _, e := range entries {
		if e.PrevHash != prev {
			return e.Seq, nil
		}
		if entryHash(e.PrevHash, e.Action, e.Actor, e.OutcomeID, e.Details) != e.EntryHash {
			return e.Seq, nil
		}
		prev = e.EntryHash
	}
	return 0, nil
}

func entryHash(prev string, action models.LedgerAction, actor string, outcomeID *uuid.UUID, details []byte) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte(action))
	h.Write([]byte(actor))
	if outcomeID != nil {
		h.Write(outcomeID[:])
	}
	h.Write(details)
	return hex.EncodeToString(h.Sum(nil))
}
