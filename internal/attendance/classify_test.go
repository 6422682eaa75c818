package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/liveness"
	"github.com/your-org/presence/internal/models"
)

func testVerifyConfig() config.VerifyConfig {
	return config.VerifyConfig{
		VerificationThreshold:   0.6,
		IdentificationThreshold: 0.5,
		LivenessThreshold:       0.35,
		CutoffTime:              "08:45",
		RegisterLength:          7,
		RegisterMinLength:       5,
		RegisterMaxLength:       9,
	}
}

func at(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 9, hour, min, sec, 0, time.UTC)
}

func live() liveness.Result {
	return liveness.Result{Live: true, Score: 0.8}
}

func spoofed() liveness.Result {
	return liveness.Result{Live: false, Score: 0.1}
}

func TestTimeStatus(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	assert.Equal(t, models.StatusPresent, c.TimeStatus(at(8, 0, 0)))
	// Exactly at the cutoff is Present; Late starts strictly after.
	assert.Equal(t, models.StatusPresent, c.TimeStatus(at(8, 45, 0)))
	assert.Equal(t, models.StatusLate, c.TimeStatus(at(8, 45, 1)))
	assert.Equal(t, models.StatusLate, c.TimeStatus(at(11, 30, 0)))
}

func TestClassifyTokenAndFaceAgree(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     true,
		VerifyConfidence: 0.82,
		Live:             live(),
		CapturedAt:       at(8, 30, 0),
	})

	assert.Equal(t, CaseTokenFace, d.Case)
	assert.Equal(t, "2301456", d.Register)
	assert.Equal(t, models.StatusPresent, d.Status)
	assert.Equal(t, models.MethodTokenFace, d.Method)
	assert.Equal(t, models.ReviewVerified, d.ReviewState)
	assert.False(t, d.NeedsReview)
	assert.False(t, d.Enroll)
	assert.Empty(t, d.Notifications)
}

func TestClassifyLateArrivalNotifies(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     true,
		VerifyConfidence: 0.75,
		Live:             live(),
		CapturedAt:       at(9, 10, 0),
	})

	assert.Equal(t, models.StatusLate, d.Status)
	assert.Contains(t, d.Notifications, models.NotifyLate)
}

func TestClassifyTokenFaceSpoofWarnsButProceeds(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     true,
		VerifyConfidence: 0.7,
		Live:             spoofed(),
		CapturedAt:       at(8, 0, 0),
	})

	// Two corroborating factors beat a weak liveness signal.
	assert.Equal(t, CaseTokenFace, d.Case)
	assert.Equal(t, models.StatusPresent, d.Status)
	assert.False(t, d.NeedsReview)
	assert.NotEmpty(t, d.Notes)
}

func TestClassifyMismatchRecordsNothing(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     false,
		VerifyConfidence: 0.41,
		Live:             live(),
		CapturedAt:       at(8, 0, 0),
	})

	assert.Equal(t, CaseMismatch, d.Case)
	assert.Equal(t, "2301456", d.Register)
	assert.False(t, d.NeedsReview)
	assert.Empty(t, d.Notifications)
	assert.NotEmpty(t, d.Notes)
}

func TestClassifyFirstSightEnrolls(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:  "2301456",
		FaceDetected:   true,
		PersonEnrolled: false,
		Live:           live(),
		CapturedAt:     at(8, 0, 0),
	})

	assert.Equal(t, CaseFirstSight, d.Case)
	assert.True(t, d.Enroll)
	assert.Equal(t, models.StatusPresent, d.Status)
	assert.Equal(t, models.ReviewVerified, d.ReviewState)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestClassifyTokenWithoutFaceOpensReview(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister: "2301456",
		FaceDetected:  false,
		Live:          liveness.Result{Live: true, Score: 0, Degraded: true},
		CapturedAt:    at(8, 0, 0),
	})

	assert.Equal(t, CaseUnverified, d.Case)
	assert.Equal(t, models.UnidentifiedRegister, d.Register)
	assert.True(t, d.NeedsReview)
	assert.False(t, d.Enroll)
	assert.Equal(t, "2301456", d.BestGuess)
}

func TestClassifyManualClaim(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	// Even a successful cross-check stays pending: the register was typed,
	// not read from the physical token.
	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		ManualClaim:      true,
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     true,
		VerifyConfidence: 0.8,
		Live:             live(),
		CapturedAt:       at(8, 0, 0),
	})

	assert.Equal(t, CaseManualClaim, d.Case)
	assert.Equal(t, models.StatusPending, d.Status)
	assert.Equal(t, models.MethodManual, d.Method)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, "2301456", d.BestGuess)
	assert.Contains(t, d.Notes, "agrees")
	assert.Contains(t, d.Notifications, models.NotifyReviewRequired)
}

func TestClassifyManualClaimCrossCheckFailure(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		TokenRegister:    "2301456",
		ManualClaim:      true,
		FaceDetected:     true,
		PersonEnrolled:   true,
		FaceVerified:     false,
		VerifyConfidence: 0.3,
		Live:             live(),
		CapturedAt:       at(8, 0, 0),
	})

	assert.Equal(t, CaseManualClaim, d.Case)
	assert.True(t, d.NeedsReview)
	assert.Contains(t, d.Notes, "FAILED")
}

func TestClassifyFaceOnlyIdentifiedStaysPending(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		FaceDetected:       true,
		IdentifiedRegister: "2301456",
		IdentifyConfidence: 0.67,
		Live:               live(),
		CapturedAt:         at(8, 50, 0),
	})

	// A single factor never finalizes attendance.
	assert.Equal(t, CaseFaceOnly, d.Case)
	assert.Equal(t, "2301456", d.Register)
	assert.Equal(t, models.StatusPending, d.Status)
	assert.Equal(t, models.MethodFaceOnly, d.Method)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, "2301456", d.BestGuess)
	assert.Contains(t, d.Notifications, models.NotifyTokenUnreadable)
	assert.Contains(t, d.Notifications, models.NotifyReviewRequired)
}

func TestClassifyFaceOnlySpoofIsHardFail(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		FaceDetected:       true,
		IdentifiedRegister: "2301456",
		IdentifyConfidence: 0.67,
		Live:               spoofed(),
		CapturedAt:         at(8, 0, 0),
	})

	// Failed liveness discards the identification entirely.
	assert.Equal(t, CaseUnverified, d.Case)
	assert.Equal(t, models.UnidentifiedRegister, d.Register)
	assert.Equal(t, models.StatusPending, d.Status)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, "2301456", d.BestGuess)
}

func TestClassifyDegradedLivenessFailsOpen(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		FaceDetected:       true,
		IdentifiedRegister: "2301456",
		IdentifyConfidence: 0.67,
		Live:               liveness.Result{Live: true, Score: 1.0, Degraded: true},
		CapturedAt:         at(8, 0, 0),
	})

	// A degraded evaluator must not downgrade the identification to
	// unidentified.
	assert.Equal(t, CaseFaceOnly, d.Case)
	assert.Equal(t, "2301456", d.Register)
}

func TestClassifyNothingUsable(t *testing.T) {
	c := NewClassifier(testVerifyConfig())

	d := c.Classify(Observation{
		FaceDetected: true,
		TokenRaw:     "torn sticker",
		Live:         live(),
		CapturedAt:   at(8, 0, 0),
	})

	assert.Equal(t, CaseUnverified, d.Case)
	assert.Equal(t, models.UnidentifiedRegister, d.Register)
	assert.Equal(t, models.UnidentifiedRegister, d.BestGuess)
	assert.True(t, d.NeedsReview)
	assert.Contains(t, d.Notes, "torn sticker")
}
