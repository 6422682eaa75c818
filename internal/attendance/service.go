package attendance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/identity"
	"github.com/your-org/presence/internal/liveness"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/token"
	"github.com/your-org/presence/internal/vision"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetPerson(ctx context.Context, registerNumber string) (*models.Person, error)
	ListActiveEnrolled(ctx context.Context) ([]models.Person, error)
	SetEmbedding(ctx context.Context, registerNumber string, emb models.IdentityEmbedding) error
	CreateOutcome(ctx context.Context, o *models.AttendanceOutcome, review *models.PendingReview) error
	GetOutcome(ctx context.Context, id uuid.UUID) (*models.AttendanceOutcome, error)
	GetReview(ctx context.Context, id uuid.UUID) (*models.PendingReview, error)
	ListOpenReviews(ctx context.Context) ([]models.PendingReview, error)
	ResolveReview(ctx context.Context, id uuid.UUID, upd storage.ReviewUpdate) (*models.PendingReview, *models.AttendanceOutcome, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
}

// Captures archives the raw frames behind outcomes.
type Captures interface {
	PutCapture(ctx context.Context, capturedAt time.Time, data []byte) (string, error)
}

// Publisher hands notification events to the queue.
type Publisher interface {
	PublishNotification(ctx context.Context, ev models.NotificationEvent) error
}

// Broadcaster pushes live attendance events to connected dashboards.
type Broadcaster interface {
	Broadcast(ev models.AttendanceEvent)
}

// Recorder appends to the audit ledger.
type Recorder interface {
	Record(ctx context.Context, outcomeID *uuid.UUID, action models.LedgerAction, actor string, details interface{}) error
}

// Analyzer is the face pipeline: detect, embed, landmark.
type Analyzer interface {
	Analyze(img image.Image) (*identity.FaceAnalysis, error)
}

// TokenDecoder runs the decode cascade over a frame.
type TokenDecoder interface {
	Decode(img image.Image) (string, models.DecodeStrategy, error)
}

// LivenessEvaluator scores anti-spoofing signals.
type LivenessEvaluator interface {
	Evaluate(img image.Image, face vision.Detection, landmarks [][3]float32) liveness.Result
}

// Service orchestrates the full capture-to-outcome flow.
type Service struct {
	store      Store
	captures   Captures
	publisher  Publisher
	broadcast  Broadcaster
	ledger     Recorder
	analyzer   Analyzer
	decoder    TokenDecoder
	extractor  *token.Extractor
	matcher    *identity.Matcher
	live       LivenessEvaluator
	classifier *Classifier
	logger     *slog.Logger
}

func NewService(
	store Store,
	captures Captures,
	publisher Publisher,
	broadcast Broadcaster,
	ledger Recorder,
	analyzer Analyzer,
	decoder TokenDecoder,
	extractor *token.Extractor,
	matcher *identity.Matcher,
	live LivenessEvaluator,
	classifier *Classifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:      store,
		captures:   captures,
		publisher:  publisher,
		broadcast:  broadcast,
		ledger:     ledger,
		analyzer:   analyzer,
		decoder:    decoder,
		extractor:  extractor,
		matcher:    matcher,
		live:       live,
		classifier: classifier,
		logger:     logger,
	}
}

// MarkResult is what one capture produced.
type MarkResult struct {
	Outcome *models.AttendanceOutcome
	Review  *models.PendingReview
	Case    string
}

// Mark processes one capture frame end to end: decode the token, analyze
// the face, score liveness, classify, and commit the outcome. A non-empty
// claimedRegister bypasses the decode cascade; the classifier treats it as
// an operator claim and always routes it to review. A person who already
// has an outcome for the day gets storage.ErrDuplicateOutcome. A face
// mismatch against a readable token records nothing and returns a result
// with a nil Outcome.
func (s *Service) Mark(ctx context.Context, img image.Image, rawFrame []byte, capturedAt time.Time, claimedRegister string) (*MarkResult, error) {
	obs := Observation{CapturedAt: capturedAt}

	// Token factor.
	if claimedRegister != "" {
		obs.TokenRegister = claimedRegister
		obs.ManualClaim = true
	} else {
		stageStart := time.Now()
		payload, strategy, err := s.decoder.Decode(img)
		observability.StageDuration.WithLabelValues("token_decode").Observe(time.Since(stageStart).Seconds())
		if err != nil {
			if !errors.Is(err, token.ErrTokenUnreadable) {
				return nil, fmt.Errorf("decode token: %w", err)
			}
			s.logger.Info("token unreadable, face-only path", "captured_at", capturedAt)
		} else {
			decoded := s.extractor.Extract(payload, strategy)
			obs.TokenRaw = decoded.Value
			if decoded.Kind != models.TokenRawText {
				obs.TokenRegister = decoded.Value
			}
		}
	}

	// Face factor.
	stageStart := time.Now()
	analysis, err := s.analyzer.Analyze(img)
	observability.StageDuration.WithLabelValues("face_analysis").Observe(time.Since(stageStart).Seconds())
	if err != nil && !errors.Is(err, identity.ErrNoFaceDetected) {
		return nil, fmt.Errorf("analyze face: %w", err)
	}

	if analysis == nil {
		if obs.TokenRegister == "" {
			// Nothing to analyze at all; no record is created.
			return nil, identity.ErrNoFaceDetected
		}
		// No face: nothing to spoof-check, the classifier decides on the
		// token factor alone.
		obs.Live = liveness.Result{Live: true, Score: 0, Degraded: true}
		s.logger.Info("no face detected", "captured_at", capturedAt)
	} else {
		obs.FaceDetected = true
		stageStart = time.Now()
		obs.Live = s.live.Evaluate(img, analysis.Detection, analysis.Landmarks)
		observability.StageDuration.WithLabelValues("liveness").Observe(time.Since(stageStart).Seconds())
		if obs.Live.Degraded {
			s.logger.Warn("liveness degraded, failing open", "captured_at", capturedAt)
		}
	}

	if err := s.matchFace(ctx, analysis, &obs); err != nil {
		return nil, err
	}

	decision := s.classifier.Classify(obs)
	observability.CapturesProcessed.WithLabelValues(decision.Case).Inc()

	if decision.Case == CaseMismatch {
		s.logger.Warn("face mismatch, nothing recorded",
			"register_number", decision.Register,
			"confidence", decision.Confidence)
		return &MarkResult{Case: CaseMismatch}, nil
	}

	if decision.Enroll && analysis != nil {
		if err := s.enroll(ctx, decision.Register, analysis); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, decision, obs, rawFrame)
}

// matchFace fills the verification or identification fields depending on
// whether the token (or the operator) produced a claim. A claim naming an
// unknown or deactivated person is rejected outright.
func (s *Service) matchFace(ctx context.Context, analysis *identity.FaceAnalysis, obs *Observation) error {
	if obs.TokenRegister != "" {
		person, err := s.store.GetPerson(ctx, obs.TokenRegister)
		if err != nil {
			return fmt.Errorf("load person %s: %w", obs.TokenRegister, err)
		}
		if person == nil || !person.Active {
			return fmt.Errorf("register %s: %w", obs.TokenRegister, ErrPersonNotFound)
		}
		obs.PersonEnrolled = person.Enrolled()
		if analysis != nil && obs.PersonEnrolled {
			conf, ok := s.matcher.Verify(analysis.Embedding, analysis.Format, person.Embedding)
			obs.VerifyConfidence = conf
			obs.FaceVerified = ok
		}
		return nil
	}

	enrolled, err := s.store.ListActiveEnrolled(ctx)
	if err != nil {
		return fmt.Errorf("load enrolled persons: %w", err)
	}
	if match, ok := s.matcher.Identify(analysis.Embedding, analysis.Format, enrolled); ok {
		obs.IdentifiedRegister = match.RegisterNumber
		obs.IdentifyConfidence = match.Confidence
	}
	return nil
}

func (s *Service) enroll(ctx context.Context, registerNumber string, analysis *identity.FaceAnalysis) error {
	emb := models.IdentityEmbedding{
		Vector: analysis.Embedding,
		Format: analysis.Format,
	}
	if err := s.store.SetEmbedding(ctx, registerNumber, emb); err != nil {
		return fmt.Errorf("enroll %s: %w", registerNumber, err)
	}
	s.logger.Info("enrolled on first sight", "register_number", registerNumber, "format", analysis.Format)

	if err := s.ledger.Record(ctx, nil, models.LedgerPersonEnrolled, "system", map[string]string{
		"register_number": registerNumber,
		"format":          string(analysis.Format),
	}); err != nil {
		s.logger.Error("ledger append failed", "error", err)
	}
	return nil
}

// EnrollPerson replaces a person's stored embedding from an explicit
// enrollment photo. The face must be detected; anything weaker belongs to
// the opportunistic first-sight path.
func (s *Service) EnrollPerson(ctx context.Context, registerNumber string, img image.Image) (*models.Person, error) {
	person, err := s.store.GetPerson(ctx, registerNumber)
	if err != nil {
		return nil, fmt.Errorf("load person %s: %w", registerNumber, err)
	}
	if person == nil {
		return nil, fmt.Errorf("person %s: %w", registerNumber, ErrPersonNotFound)
	}

	analysis, err := s.analyzer.Analyze(img)
	if err != nil {
		return nil, err
	}

	if err := s.enroll(ctx, registerNumber, analysis); err != nil {
		return nil, err
	}
	return s.store.GetPerson(ctx, registerNumber)
}

// commit archives the frame, writes the outcome (and review) atomically,
// and fans out events.
func (s *Service) commit(ctx context.Context, decision Decision, obs Observation, rawFrame []byte) (*MarkResult, error) {
	captureKey := ""
	if len(rawFrame) > 0 {
		key, err := s.captures.PutCapture(ctx, obs.CapturedAt, rawFrame)
		if err != nil {
			// The outcome matters more than the audit image.
			s.logger.Error("archive capture failed", "error", err)
		} else {
			captureKey = key
		}
	}

	outcome := &models.AttendanceOutcome{
		ID:                 uuid.New(),
		RegisterNumber:     decision.Register,
		Day:                dayOf(obs.CapturedAt),
		CapturedAt:         obs.CapturedAt,
		Status:             decision.Status,
		Method:             decision.Method,
		MatchConfidence:    float32(decision.Confidence),
		LivenessConfidence: float32(obs.Live.Score),
		ReviewState:        decision.ReviewState,
		CaptureKey:         captureKey,
	}
	if decision.Notes != "" {
		notes := decision.Notes
		outcome.ReviewNotes = &notes
	}

	var review *models.PendingReview
	if decision.NeedsReview {
		review = &models.PendingReview{
			ID:         uuid.New(),
			OutcomeID:  outcome.ID,
			BestGuess:  decision.BestGuess,
			Confidence: float32(decision.Confidence),
			Notes:      decision.Notes,
		}
	}

	if err := s.store.CreateOutcome(ctx, outcome, review); err != nil {
		return nil, err
	}
	observability.OutcomesCreated.WithLabelValues(string(decision.Status)).Inc()

	if err := s.ledger.Record(ctx, &outcome.ID, models.LedgerOutcomeCreated, "system", map[string]interface{}{
		"register_number": outcome.RegisterNumber,
		"status":          outcome.Status,
		"case":            decision.Case,
	}); err != nil {
		s.logger.Error("ledger append failed", "error", err)
	}
	if review != nil {
		if err := s.ledger.Record(ctx, &outcome.ID, models.LedgerReviewOpened, "system", map[string]string{
			"review_id":  review.ID.String(),
			"best_guess": review.BestGuess,
		}); err != nil {
			s.logger.Error("ledger append failed", "error", err)
		}
	}

	s.broadcast.Broadcast(models.AttendanceEvent{
		Type:               "attendance_marked",
		OutcomeID:          outcome.ID,
		RegisterNumber:     outcome.RegisterNumber,
		Status:             outcome.Status,
		Method:             outcome.Method,
		MatchConfidence:    outcome.MatchConfidence,
		LivenessConfidence: outcome.LivenessConfidence,
		CapturedAt:         outcome.CapturedAt,
	})

	s.notify(ctx, decision, outcome)

	s.logger.Info("attendance marked",
		"case", decision.Case,
		"register_number", outcome.RegisterNumber,
		"status", outcome.Status,
		"match_confidence", outcome.MatchConfidence,
		"liveness", outcome.LivenessConfidence)

	return &MarkResult{Outcome: outcome, Review: review, Case: decision.Case}, nil
}

func (s *Service) notify(ctx context.Context, decision Decision, outcome *models.AttendanceOutcome) {
	if len(decision.Notifications) == 0 {
		return
	}

	personName := ""
	if outcome.RegisterNumber != models.UnidentifiedRegister {
		if p, err := s.store.GetPerson(ctx, outcome.RegisterNumber); err == nil && p != nil {
			personName = p.Name
		}
	}

	published := false
	for _, kind := range decision.Notifications {
		ev := models.NotificationEvent{
			Kind:           kind,
			OutcomeID:      outcome.ID,
			RegisterNumber: outcome.RegisterNumber,
			PersonName:     personName,
			Status:         outcome.Status,
			CapturedAt:     outcome.CapturedAt,
		}
		if err := s.publisher.PublishNotification(ctx, ev); err != nil {
			s.logger.Error("publish notification failed", "kind", kind, "error", err)
			continue
		}
		published = true
	}

	if published {
		if err := s.store.MarkNotified(ctx, outcome.ID); err != nil {
			s.logger.Error("mark notified failed", "error", err)
		} else {
			outcome.Notified = true
		}
	}
}

// dayOf normalizes a capture instant to its calendar date at midnight UTC,
// which is what the DATE column stores.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
