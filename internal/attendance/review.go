package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/storage"
)

// Resolve applies the one-shot decision on a pending review.
//
// Approval recomputes Present/Late from the original capture instant, not
// the resolution time; a reviewer approving at noon does not turn a
// punctual arrival into a late one. The reviewer may supply the true
// register number; when omitted the review's best guess stands. Rejection
// marks the outcome rejected. Either way the review is terminal; a second
// resolution returns storage.ErrAlreadyResolved.
func (s *Service) Resolve(ctx context.Context, reviewID uuid.UUID, resolution models.ReviewResolution, resolvedBy, notes, trueRegister string) (*models.PendingReview, *models.AttendanceOutcome, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, nil, fmt.Errorf("load review: %w", err)
	}
	if review == nil {
		return nil, nil, fmt.Errorf("review %s: %w", reviewID, ErrReviewNotFound)
	}

	outcome, err := s.store.GetOutcome(ctx, review.OutcomeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load outcome: %w", err)
	}
	if outcome == nil {
		return nil, nil, fmt.Errorf("outcome %s: %w", review.OutcomeID, ErrReviewNotFound)
	}

	upd := storage.ReviewUpdate{
		Resolution: resolution,
		ResolvedBy: resolvedBy,
		Notes:      notes,
	}

	switch resolution {
	case models.ResolutionApproved:
		upd.NewStatus = s.classifier.TimeStatus(outcome.CapturedAt)
		upd.NewReviewState = models.ReviewManuallyVerified
		target := trueRegister
		if target == "" {
			target = review.BestGuess
		}
		if target != "" && target != models.UnidentifiedRegister && target != outcome.RegisterNumber {
			upd.NewRegister = target
		}
	case models.ResolutionRejected:
		upd.NewStatus = models.StatusRejected
		upd.NewReviewState = models.ReviewRejected
	default:
		return nil, nil, fmt.Errorf("unknown resolution %q", resolution)
	}

	resolved, updated, err := s.store.ResolveReview(ctx, reviewID, upd)
	if err != nil {
		return nil, nil, err
	}
	observability.ReviewsResolved.WithLabelValues(string(resolution)).Inc()

	if err := s.ledger.Record(ctx, &updated.ID, models.LedgerReviewResolved, resolvedBy, map[string]interface{}{
		"review_id":  reviewID.String(),
		"resolution": resolution,
		"status":     updated.Status,
	}); err != nil {
		s.logger.Error("ledger append failed", "error", err)
	}

	s.broadcast.Broadcast(models.AttendanceEvent{
		Type:               "review_resolved",
		OutcomeID:          updated.ID,
		RegisterNumber:     updated.RegisterNumber,
		Status:             updated.Status,
		Method:             updated.Method,
		MatchConfidence:    updated.MatchConfidence,
		LivenessConfidence: updated.LivenessConfidence,
		CapturedAt:         updated.CapturedAt,
	})

	s.logger.Info("review resolved",
		"review_id", reviewID,
		"resolution", resolution,
		"resolved_by", resolvedBy,
		"status", updated.Status)

	return resolved, updated, nil
}

// OpenReviews lists unresolved reviews oldest first.
func (s *Service) OpenReviews(ctx context.Context) ([]models.PendingReview, error) {
	return s.store.ListOpenReviews(ctx)
}
