package attendance

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/presence/internal/identity"
	"github.com/your-org/presence/internal/liveness"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/token"
	"github.com/your-org/presence/internal/vision"
)

// memStore is an in-memory stand-in for the Postgres store. It enforces the
// same one-outcome-per-person-per-day rule and review resolution semantics.
type memStore struct {
	persons  map[string]*models.Person
	outcomes map[uuid.UUID]*models.AttendanceOutcome
	reviews  map[uuid.UUID]*models.PendingReview
}

func newMemStore() *memStore {
	return &memStore{
		persons:  make(map[string]*models.Person),
		outcomes: make(map[uuid.UUID]*models.AttendanceOutcome),
		reviews:  make(map[uuid.UUID]*models.PendingReview),
	}
}

func (m *memStore) GetPerson(_ context.Context, register string) (*models.Person, error) {
	p, ok := m.persons[register]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListActiveEnrolled(_ context.Context) ([]models.Person, error) {
	var out []models.Person
	for _, p := range m.persons {
		if p.Active && p.Enrolled() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) SetEmbedding(_ context.Context, register string, emb models.IdentityEmbedding) error {
	p, ok := m.persons[register]
	if !ok {
		return storage.ErrNotFound
	}
	p.Embedding = &emb
	return nil
}

func (m *memStore) hasOutcomeFor(register string, day time.Time) bool {
	if register == models.UnidentifiedRegister {
		return false
	}
	for _, o := range m.outcomes {
		if o.RegisterNumber == register && o.Day.Equal(day) {
			return true
		}
	}
	return false
}

func (m *memStore) CreateOutcome(_ context.Context, o *models.AttendanceOutcome, review *models.PendingReview) error {
	if m.hasOutcomeFor(o.RegisterNumber, o.Day) {
		return storage.ErrDuplicateOutcome
	}
	cp := *o
	m.outcomes[o.ID] = &cp
	if review != nil {
		rcp := *review
		m.reviews[review.ID] = &rcp
	}
	return nil
}

func (m *memStore) GetOutcome(_ context.Context, id uuid.UUID) (*models.AttendanceOutcome, error) {
	o, ok := m.outcomes[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetReview(_ context.Context, id uuid.UUID) (*models.PendingReview, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListOpenReviews(_ context.Context) ([]models.PendingReview, error) {
	var out []models.PendingReview
	for _, r := range m.reviews {
		if !r.Resolved() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ResolveReview(_ context.Context, id uuid.UUID, upd storage.ReviewUpdate) (*models.PendingReview, *models.AttendanceOutcome, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	if r.Resolved() {
		return nil, nil, storage.ErrAlreadyResolved
	}
	o, ok := m.outcomes[r.OutcomeID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}

	if upd.NewRegister != "" {
		if m.hasOutcomeFor(upd.NewRegister, o.Day) {
			return nil, nil, storage.ErrDuplicateOutcome
		}
		o.RegisterNumber = upd.NewRegister
	}
	o.Status = upd.NewStatus
	o.ReviewState = upd.NewReviewState
	o.ReviewedBy = &upd.ResolvedBy

	now := time.Now()
	resolution := upd.Resolution
	r.Resolution = &resolution
	r.ResolvedBy = &upd.ResolvedBy
	r.ResolvedAt = &now
	if upd.Notes != "" {
		notes := upd.Notes
		r.ResolvedNotes = &notes
	}

	rcp := *r
	ocp := *o
	return &rcp, &ocp, nil
}

func (m *memStore) MarkNotified(_ context.Context, id uuid.UUID) error {
	if o, ok := m.outcomes[id]; ok {
		o.Notified = true
	}
	return nil
}

type stubCaptures struct{ keys []string }

func (s *stubCaptures) PutCapture(_ context.Context, capturedAt time.Time, _ []byte) (string, error) {
	key := "captures/" + capturedAt.Format("2006-01-02") + "/" + uuid.NewString() + ".jpg"
	s.keys = append(s.keys, key)
	return key, nil
}

type stubPublisher struct{ events []models.NotificationEvent }

func (s *stubPublisher) PublishNotification(_ context.Context, ev models.NotificationEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *stubPublisher) kinds() []models.NotificationKind {
	var out []models.NotificationKind
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

type stubBroadcaster struct{ events []models.AttendanceEvent }

func (s *stubBroadcaster) Broadcast(ev models.AttendanceEvent) { s.events = append(s.events, ev) }

type stubRecorder struct{ actions []models.LedgerAction }

func (s *stubRecorder) Record(_ context.Context, _ *uuid.UUID, action models.LedgerAction, _ string, _ interface{}) error {
	s.actions = append(s.actions, action)
	return nil
}

type stubAnalyzer struct {
	analysis *identity.FaceAnalysis
	err      error
}

func (s *stubAnalyzer) Analyze(image.Image) (*identity.FaceAnalysis, error) { return s.analysis, s.err }

type stubDecoder struct {
	payload string
	err     error
}

func (s *stubDecoder) Decode(image.Image) (string, models.DecodeStrategy, error) {
	return s.payload, models.StrategyDirect, s.err
}

type stubLiveness struct{ result liveness.Result }

func (s *stubLiveness) Evaluate(image.Image, vision.Detection, [][3]float32) liveness.Result {
	return s.result
}

type fixture struct {
	svc       *Service
	store     *memStore
	captures  *stubCaptures
	publisher *stubPublisher
	hub       *stubBroadcaster
	recorder  *stubRecorder
	analyzer  *stubAnalyzer
	decoder   *stubDecoder
	live      *stubLiveness
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		captures:  &stubCaptures{},
		publisher: &stubPublisher{},
		hub:       &stubBroadcaster{},
		recorder:  &stubRecorder{},
		analyzer:  &stubAnalyzer{err: identity.ErrNoFaceDetected},
		decoder:   &stubDecoder{err: token.ErrTokenUnreadable},
		live:      &stubLiveness{result: liveness.Result{Live: true, Score: 0.8}},
	}
	f.svc = NewService(
		f.store,
		f.captures,
		f.publisher,
		f.hub,
		f.recorder,
		f.analyzer,
		f.decoder,
		token.NewExtractor(7, 5, 9),
		identity.NewMatcher(0.6, 0.5),
		f.live,
		NewClassifier(testVerifyConfig()),
		slog.Default(),
	)
	return f
}

func (f *fixture) addPerson(register string, emb *models.IdentityEmbedding) {
	f.store.persons[register] = &models.Person{
		RegisterNumber: register,
		Name:           "Person " + register,
		Active:         true,
		Embedding:      emb,
	}
}

func (f *fixture) seeFace(emb []float32) {
	f.analyzer.analysis = &identity.FaceAnalysis{
		Detection: vision.Detection{BBox: [4]float32{10, 10, 110, 110}, Confidence: 0.95},
		Embedding: emb,
		Format:    models.EmbeddingFormatArcFace,
		Landmarks: make([][3]float32, 68),
	}
	f.analyzer.err = nil
}

func (f *fixture) readToken(payload string) {
	f.decoder.payload = payload
	f.decoder.err = nil
}

func arcface(v ...float32) *models.IdentityEmbedding {
	return &models.IdentityEmbedding{Vector: v, Format: models.EmbeddingFormatArcFace}
}

func frame() image.Image { return image.NewRGBA(image.Rect(0, 0, 64, 64)) }

func TestMarkTokenAndFace(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.readToken("2301456")
	f.seeFace([]float32{1, 0, 0})

	res, err := f.svc.Mark(context.Background(), frame(), []byte{0xFF, 0xD8}, at(8, 20, 0), "")
	require.NoError(t, err)

	assert.Equal(t, CaseTokenFace, res.Case)
	assert.Equal(t, "2301456", res.Outcome.RegisterNumber)
	assert.Equal(t, models.StatusPresent, res.Outcome.Status)
	assert.Nil(t, res.Review)
	assert.NotEmpty(t, res.Outcome.CaptureKey)
	assert.Empty(t, f.publisher.events)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "attendance_marked", f.hub.events[0].Type)
	assert.Contains(t, f.recorder.actions, models.LedgerOutcomeCreated)
}

func TestMarkLateNotifies(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.readToken("2301456")
	f.seeFace([]float32{1, 0, 0})

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(9, 10, 0), "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusLate, res.Outcome.Status)
	assert.Contains(t, f.publisher.kinds(), models.NotifyLate)
	assert.True(t, f.store.outcomes[res.Outcome.ID].Notified)
}

func TestMarkDuplicateDay(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.readToken("2301456")
	f.seeFace([]float32{1, 0, 0})

	_, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	require.NoError(t, err)

	// Walking past the kiosk again the same day changes nothing.
	_, err = f.svc.Mark(context.Background(), frame(), nil, at(9, 40, 0), "")
	assert.ErrorIs(t, err, storage.ErrDuplicateOutcome)
	assert.Len(t, f.store.outcomes, 1)
}

func TestMarkMismatchRecordsNothing(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.readToken("2301456")
	f.seeFace([]float32{0, 1, 0}) // orthogonal, verification fails

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	require.NoError(t, err)

	assert.Equal(t, CaseMismatch, res.Case)
	assert.Nil(t, res.Outcome)
	assert.Nil(t, res.Review)
	assert.Empty(t, f.store.outcomes)
	assert.Empty(t, f.hub.events)
}

func TestMarkUnknownRegisterRejected(t *testing.T) {
	f := newFixture()
	f.readToken("9999999")
	f.seeFace([]float32{1, 0, 0})

	_, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	assert.ErrorIs(t, err, ErrPersonNotFound)
	assert.Empty(t, f.store.outcomes)
}

func TestMarkFirstSightEnrolls(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", nil)
	f.readToken("2301456")
	f.seeFace([]float32{0, 1, 0})

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	require.NoError(t, err)

	assert.Equal(t, CaseFirstSight, res.Case)
	p := f.store.persons["2301456"]
	require.True(t, p.Enrolled())
	assert.Equal(t, models.EmbeddingFormatArcFace, p.Embedding.Format)
	assert.Contains(t, f.recorder.actions, models.LedgerPersonEnrolled)
}

func TestMarkFaceOnlyStaysPending(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.seeFace([]float32{1, 0, 0})

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(9, 0, 0), "")
	require.NoError(t, err)

	assert.Equal(t, CaseFaceOnly, res.Case)
	assert.Equal(t, "2301456", res.Outcome.RegisterNumber)
	assert.Equal(t, models.StatusPending, res.Outcome.Status)
	require.NotNil(t, res.Review)
	assert.Equal(t, "2301456", res.Review.BestGuess)
	assert.Contains(t, f.publisher.kinds(), models.NotifyTokenUnreadable)
	assert.Contains(t, f.publisher.kinds(), models.NotifyReviewRequired)
	assert.True(t, f.store.outcomes[res.Outcome.ID].Notified)
}

func TestMarkUnidentifiedOpensReview(t *testing.T) {
	f := newFixture()
	f.seeFace([]float32{1, 0, 0}) // nobody enrolled to match against

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	require.NoError(t, err)

	assert.Equal(t, CaseUnverified, res.Case)
	assert.Equal(t, models.UnidentifiedRegister, res.Outcome.RegisterNumber)
	require.NotNil(t, res.Review)
	assert.Equal(t, models.UnidentifiedRegister, res.Review.BestGuess)
	assert.Contains(t, f.recorder.actions, models.LedgerReviewOpened)
}

func TestMarkManualClaim(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.seeFace([]float32{1, 0, 0})

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "2301456")
	require.NoError(t, err)

	// Operator-entered register always waits for a human, even when the
	// face agrees.
	assert.Equal(t, CaseManualClaim, res.Case)
	assert.Equal(t, models.StatusPending, res.Outcome.Status)
	assert.Equal(t, models.MethodManual, res.Outcome.Method)
	require.NotNil(t, res.Review)
	assert.Equal(t, "2301456", res.Review.BestGuess)
}

func TestMarkNoFactorsRejected(t *testing.T) {
	f := newFixture()

	// Token unreadable and no face: nothing to analyze, nothing recorded.
	_, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	assert.ErrorIs(t, err, identity.ErrNoFaceDetected)
	assert.Empty(t, f.store.outcomes)
}

func TestMarkDecoderHardError(t *testing.T) {
	f := newFixture()
	f.decoder.err = errors.New("camera unplugged")

	_, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, token.ErrTokenUnreadable)
}

func markPendingManualClaim(t *testing.T, f *fixture, capturedAt time.Time) *MarkResult {
	t.Helper()
	f.addPerson("2301456", arcface(1, 0, 0))
	f.seeFace([]float32{1, 0, 0})
	res, err := f.svc.Mark(context.Background(), frame(), nil, capturedAt, "2301456")
	require.NoError(t, err)
	require.NotNil(t, res.Review)
	return res
}

func TestResolveApproveKeepsCaptureTimeStatus(t *testing.T) {
	f := newFixture()
	res := markPendingManualClaim(t, f, at(8, 20, 0))

	// Approving hours later must not turn a punctual capture into Late.
	review, outcome, err := f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionApproved, "prof.jansen", "checked the photo", "")
	require.NoError(t, err)

	assert.True(t, review.Resolved())
	assert.Equal(t, models.StatusPresent, outcome.Status)
	assert.Equal(t, models.ReviewManuallyVerified, outcome.ReviewState)
	assert.Contains(t, f.recorder.actions, models.LedgerReviewResolved)

	last := f.hub.events[len(f.hub.events)-1]
	assert.Equal(t, "review_resolved", last.Type)
}

func TestResolveApproveLateCapture(t *testing.T) {
	f := newFixture()
	res := markPendingManualClaim(t, f, at(10, 5, 0))

	_, outcome, err := f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionApproved, "prof.jansen", "verified", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, outcome.Status)
}

func TestResolveApproveReassignsUnidentified(t *testing.T) {
	f := newFixture()
	f.seeFace([]float32{1, 0, 0}) // no enrolled candidates

	res, err := f.svc.Mark(context.Background(), frame(), nil, at(8, 20, 0), "")
	require.NoError(t, err)
	require.NotNil(t, res.Review)
	require.Equal(t, models.UnidentifiedRegister, res.Outcome.RegisterNumber)

	// The reviewer names the true person.
	_, outcome, err := f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionApproved, "prof.jansen", "recognized on the photo", "2301456")
	require.NoError(t, err)
	assert.Equal(t, "2301456", outcome.RegisterNumber)
	assert.Equal(t, models.StatusPresent, outcome.Status)
}

func TestResolveReject(t *testing.T) {
	f := newFixture()
	res := markPendingManualClaim(t, f, at(8, 20, 0))

	_, outcome, err := f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionRejected, "prof.jansen", "nobody recognizable", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, outcome.Status)
	assert.Equal(t, models.ReviewRejected, outcome.ReviewState)
}

func TestResolveTwiceFails(t *testing.T) {
	f := newFixture()
	res := markPendingManualClaim(t, f, at(8, 20, 0))

	_, _, err := f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionRejected, "prof.jansen", "not them", "")
	require.NoError(t, err)

	_, _, err = f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionApproved, "prof.smit", "second opinion", "")
	assert.ErrorIs(t, err, storage.ErrAlreadyResolved)
}

func TestResolveUnknownReview(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Resolve(context.Background(), uuid.New(),
		models.ResolutionApproved, "prof.jansen", "notes", "")
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestEnrollPerson(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", nil)
	f.seeFace([]float32{0, 0, 1})

	p, err := f.svc.EnrollPerson(context.Background(), "2301456", frame())
	require.NoError(t, err)
	assert.True(t, p.Enrolled())

	_, err = f.svc.EnrollPerson(context.Background(), "0000000", frame())
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestEnrollPersonNeedsFace(t *testing.T) {
	f := newFixture()
	f.addPerson("2301456", nil)

	_, err := f.svc.EnrollPerson(context.Background(), "2301456", frame())
	assert.ErrorIs(t, err, identity.ErrNoFaceDetected)
}

func TestOpenReviews(t *testing.T) {
	f := newFixture()
	res := markPendingManualClaim(t, f, at(8, 20, 0))

	open, err := f.svc.OpenReviews(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)

	_, _, err = f.svc.Resolve(context.Background(), res.Review.ID,
		models.ResolutionRejected, "prof.jansen", "not them", "")
	require.NoError(t, err)

	open, err = f.svc.OpenReviews(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}
