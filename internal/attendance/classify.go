package attendance

import (
	"fmt"
	"time"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/liveness"
	"github.com/your-org/presence/internal/models"
)

// Case labels for metrics and logs.
const (
	CaseTokenFace   = "token_face"   // both factors agree
	CaseMismatch    = "mismatch"     // token claims one person, face disagrees; nothing is recorded
	CaseFaceOnly    = "face_only"    // token unreadable, face identified, pending confirmation
	CaseUnverified  = "unverified"   // neither factor produced an identity
	CaseFirstSight  = "first_sight"  // valid token, person not yet enrolled
	CaseManualClaim = "manual_claim" // operator-entered register, always pending
)

// Observation is everything the classifier needs, reduced to plain values
// so the decision logic stays independent of the ML and storage layers.
type Observation struct {
	// TokenRegister is the extracted register number, empty when the token
	// was unreadable or carried no usable number. The service guarantees a
	// non-empty register refers to an active roster entry.
	TokenRegister string
	// TokenRaw is the raw decoded payload, kept for reviewer notes.
	TokenRaw string
	// ManualClaim marks a register entered by an operator instead of read
	// from the physical token.
	ManualClaim bool

	// FaceDetected reports whether the frame contained a usable face.
	FaceDetected bool

	// PersonEnrolled reports whether the roster entry for TokenRegister has
	// a stored embedding.
	PersonEnrolled bool

	// FaceVerified is the 1:1 result against the token person's embedding.
	FaceVerified     bool
	VerifyConfidence float64

	// IdentifiedRegister is the 1:N best match, empty when nothing cleared
	// the identification threshold.
	IdentifiedRegister string
	IdentifyConfidence float64

	Live       liveness.Result
	CapturedAt time.Time
}

// Decision is the classifier verdict: what outcome to write, whether a
// review is opened, whether to enroll, and what to notify about. A
// CaseMismatch decision writes nothing; the caller is told to retry.
type Decision struct {
	Case        string
	Register    string
	Status      models.AttendanceStatus
	Method      models.VerificationMethod
	ReviewState models.ReviewState
	Confidence  float64

	NeedsReview bool
	BestGuess   string
	Notes       string

	// Enroll requests opportunistic enrollment of the capture embedding
	// for Register.
	Enroll bool

	Notifications []models.NotificationKind
}

// Classifier applies the verification case rules under the configured
// cutoff and thresholds.
type Classifier struct {
	cfg config.VerifyConfig
}

func NewClassifier(cfg config.VerifyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// TimeStatus maps a capture instant to Present or Late. A capture at
// exactly the cutoff is Present; only strictly later is Late.
func (c *Classifier) TimeStatus(capturedAt time.Time) models.AttendanceStatus {
	if capturedAt.After(c.cfg.CutoffFor(capturedAt)) {
		return models.StatusLate
	}
	return models.StatusPresent
}

// Classify decides the outcome for one capture.
//
// With a readable token the token is the claim and the face is the check:
// a failed liveness signal downgrades to a warning because the two factors
// already corroborate each other. Without a token the face alone never
// finalizes attendance; the best identification becomes a pending outcome
// for a human to confirm, and liveness failure blocks even that.
func (c *Classifier) Classify(obs Observation) Decision {
	if obs.TokenRegister == "" {
		return c.classifyFaceOnly(obs)
	}
	if obs.ManualClaim {
		return c.classifyManualClaim(obs)
	}
	return c.classifyWithToken(obs)
}

func (c *Classifier) classifyWithToken(obs Observation) Decision {
	status := c.TimeStatus(obs.CapturedAt)

	if !obs.FaceDetected {
		return Decision{
			Case:          CaseUnverified,
			Register:      models.UnidentifiedRegister,
			Status:        models.StatusPending,
			Method:        models.MethodTokenFace,
			ReviewState:   models.ReviewPending,
			NeedsReview:   true,
			BestGuess:     obs.TokenRegister,
			Notes:         fmt.Sprintf("token register %s presented without a visible face", obs.TokenRegister),
			Notifications: []models.NotificationKind{models.NotifyReviewRequired},
		}
	}

	if !obs.PersonEnrolled {
		// First sight: the token vouches for the identity, the capture
		// becomes the enrollment embedding.
		d := Decision{
			Case:        CaseFirstSight,
			Register:    obs.TokenRegister,
			Status:      status,
			Method:      models.MethodTokenFace,
			ReviewState: models.ReviewVerified,
			Confidence:  1.0,
			Enroll:      true,
		}
		if status == models.StatusLate {
			d.Notifications = append(d.Notifications, models.NotifyLate)
		}
		return d
	}

	if obs.FaceVerified {
		d := Decision{
			Case:        CaseTokenFace,
			Register:    obs.TokenRegister,
			Status:      status,
			Method:      models.MethodTokenFace,
			ReviewState: models.ReviewVerified,
			Confidence:  obs.VerifyConfidence,
		}
		if !obs.Live.Live && !obs.Live.Degraded {
			d.Notes = fmt.Sprintf("liveness below threshold (%.2f), accepted on token+face agreement", obs.Live.Score)
		}
		if status == models.StatusLate {
			d.Notifications = append(d.Notifications, models.NotifyLate)
		}
		return d
	}

	// The face does not back the token's claim. Nothing is recorded; the
	// person retries at the kiosk.
	return Decision{
		Case:       CaseMismatch,
		Register:   obs.TokenRegister,
		Method:     models.MethodTokenFace,
		Confidence: obs.VerifyConfidence,
		Notes: fmt.Sprintf("face verification failed for token register %s (confidence %.2f)",
			obs.TokenRegister, obs.VerifyConfidence),
	}
}

// classifyManualClaim handles an operator-entered register. The face
// cross-check result is recorded for the reviewer but the outcome is
// always pending: the identifier was typed, not read from the token.
func (c *Classifier) classifyManualClaim(obs Observation) Decision {
	var notes string
	switch {
	case !obs.FaceDetected:
		notes = fmt.Sprintf("operator claimed register %s without a visible face", obs.TokenRegister)
	case !obs.PersonEnrolled:
		notes = fmt.Sprintf("operator claimed register %s; person not enrolled, no cross-check possible", obs.TokenRegister)
	case obs.FaceVerified:
		notes = fmt.Sprintf("operator claimed register %s; face cross-check agrees (confidence %.2f)",
			obs.TokenRegister, obs.VerifyConfidence)
	default:
		notes = fmt.Sprintf("operator claimed register %s; face cross-check FAILED (confidence %.2f)",
			obs.TokenRegister, obs.VerifyConfidence)
	}

	return Decision{
		Case:          CaseManualClaim,
		Register:      obs.TokenRegister,
		Status:        models.StatusPending,
		Method:        models.MethodManual,
		ReviewState:   models.ReviewPending,
		Confidence:    obs.VerifyConfidence,
		NeedsReview:   true,
		BestGuess:     obs.TokenRegister,
		Notes:         notes,
		Notifications: []models.NotificationKind{models.NotifyReviewRequired},
	}
}

func (c *Classifier) classifyFaceOnly(obs Observation) Decision {
	// Single-factor identification demands a live face.
	if !obs.Live.Live && !obs.Live.Degraded {
		return Decision{
			Case:          CaseUnverified,
			Register:      models.UnidentifiedRegister,
			Status:        models.StatusPending,
			Method:        models.MethodFaceOnly,
			ReviewState:   models.ReviewPending,
			NeedsReview:   true,
			BestGuess:     bestGuessOrUnknown(obs.IdentifiedRegister),
			Confidence:    obs.IdentifyConfidence,
			Notes:         fmt.Sprintf("liveness check failed (score %.2f), face-only identification rejected", obs.Live.Score),
			Notifications: []models.NotificationKind{models.NotifyReviewRequired},
		}
	}

	if obs.IdentifiedRegister != "" {
		return Decision{
			Case:        CaseFaceOnly,
			Register:    obs.IdentifiedRegister,
			Status:      models.StatusPending,
			Method:      models.MethodFaceOnly,
			ReviewState: models.ReviewPending,
			Confidence:  obs.IdentifyConfidence,
			NeedsReview: true,
			BestGuess:   obs.IdentifiedRegister,
			Notes: fmt.Sprintf("token unreadable; identified %s by face (confidence %.2f)",
				obs.IdentifiedRegister, obs.IdentifyConfidence),
			Notifications: []models.NotificationKind{models.NotifyTokenUnreadable, models.NotifyReviewRequired},
		}
	}

	notes := "no token and no face match"
	if obs.TokenRaw != "" {
		notes = fmt.Sprintf("undecodable token payload %q, no face match", obs.TokenRaw)
	}
	return Decision{
		Case:          CaseUnverified,
		Register:      models.UnidentifiedRegister,
		Status:        models.StatusPending,
		Method:        models.MethodFaceOnly,
		ReviewState:   models.ReviewPending,
		NeedsReview:   true,
		BestGuess:     models.UnidentifiedRegister,
		Notes:         notes,
		Notifications: []models.NotificationKind{models.NotifyReviewRequired},
	}
}

func bestGuessOrUnknown(register string) string {
	if register == "" {
		return models.UnidentifiedRegister
	}
	return register
}
