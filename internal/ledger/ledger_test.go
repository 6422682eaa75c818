package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presence/internal/models"
)

type memStore struct {
	entries []models.LedgerEntry
}

func (m *memStore) AppendLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	e.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) LastLedgerHash(_ context.Context) (string, error) {
	if len(m.entries) == 0 {
		return "", nil
	}
	return m.entries[len(m.entries)-1].EntryHash, nil
}

func (m *memStore) ListLedgerEntries(_ context.Context) ([]models.LedgerEntry, error) {
	return m.entries, nil
}

func TestLedgerChainsEntries(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store)

	id := uuid.New()
	require.NoError(t, l.Record(ctx, &id, models.LedgerOutcomeCreated, "system", map[string]string{"status": "present"}))
	require.NoError(t, l.Record(ctx, &id, models.LedgerReviewOpened, "system", map[string]string{"best_guess": "2301456"}))
	require.NoError(t, l.Record(ctx, nil, models.LedgerPersonEnrolled, "admin", map[string]string{"register_number": "2301456"}))

	require.Len(t, store.entries, 3)
	assert.Empty(t, store.entries[0].PrevHash)
	assert.Equal(t, store.entries[0].EntryHash, store.entries[1].PrevHash)
	assert.Equal(t, store.entries[1].EntryHash, store.entries[2].PrevHash)

	broken, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store)

	id := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, &id, models.LedgerOutcomeCreated, "system", map[string]int{"n": i}))
	}

	// Edit the middle entry's payload after the fact.
	store.entries[1].Details = []byte(`{"n":99}`)

	broken, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), broken)
}

func TestVerifyDetectsRemovedEntry(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store)

	id := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, &id, models.LedgerOutcomeCreated, "system", map[string]int{"n": i}))
	}

	// Drop the middle entry; the link from 1 to 3 no longer holds.
	store.entries = append(store.entries[:1], store.entries[2:]...)

	broken, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), broken)
}

func TestVerifyEmptyChain(t *testing.T) {
	l := New(&memStore{})
	broken, err := l.Verify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestRecordRejectsUnmarshalableDetails(t *testing.T) {
	l := New(&memStore{})
	err := l.Record(context.Background(), nil, models.LedgerOutcomeCreated, "system", make(chan int))
	assert.Error(t, err)
}
