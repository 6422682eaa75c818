package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/identity"
	"github.com/your-org/presence/internal/imaging"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

// maxCaptureBytes bounds the accepted upload size.
const maxCaptureBytes = 10 << 20

type AttendanceHandler struct {
	svc      *attendance.Service
	db       *storage.PostgresStore
	captures *storage.CaptureStore
}

func NewAttendanceHandler(svc *attendance.Service, db *storage.PostgresStore, captures *storage.CaptureStore) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, db: db, captures: captures}
}

// Mark accepts a capture frame as multipart form data ("image") and runs
// the full verification flow. An optional "captured_at" field (RFC 3339)
// backdates the capture for kiosks that buffer frames offline; an optional
// "claimed_register" field carries an operator-entered register for the
// forgot-token flow.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCaptureBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image: " + err.Error()})
		return
	}

	img, err := imaging.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "undecodable image"})
		return
	}

	capturedAt := time.Now()
	if v := c.PostForm("captured_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captured_at"})
			return
		}
		capturedAt = t
	}

	result, err := h.svc.Mark(c.Request.Context(), img, data, capturedAt, c.PostForm("claimed_register"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateOutcome):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, identity.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrPersonNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := dto.MarkResponse{Case: result.Case}
	if result.Outcome != nil {
		o := dto.OutcomeFromModel(result.Outcome)
		resp.Outcome = &o
	}
	if result.Review != nil {
		r := dto.ReviewFromModel(result.Review)
		resp.Review = &r
	}
	if result.Outcome == nil {
		// Mismatch: nothing was recorded, the person retries at the kiosk.
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get returns one outcome by ID.
func (h *AttendanceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome id"})
		return
	}

	outcome, err := h.db.GetOutcome(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcome == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "outcome not found"})
		return
	}
	c.JSON(http.StatusOK, dto.OutcomeFromModel(outcome))
}

// ListDay returns all outcomes for a calendar day (default today).
func (h *AttendanceHandler) ListDay(c *gin.Context) {
	day := time.Now().UTC()
	if v := c.Query("day"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day, want YYYY-MM-DD"})
			return
		}
		day = t
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	outcomes, err := h.db.ListOutcomesForDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.OutcomeResponse, 0, len(outcomes))
	for i := range outcomes {
		resp = append(resp, dto.OutcomeFromModel(&outcomes[i]))
	}
	c.JSON(http.StatusOK, gin.H{"day": day.Format("2006-01-02"), "outcomes": resp})
}

// Capture streams the archived frame behind an outcome.
func (h *AttendanceHandler) Capture(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome id"})
		return
	}

	outcome, err := h.db.GetOutcome(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcome == nil || outcome.CaptureKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture not found"})
		return
	}

	data, err := h.captures.GetCapture(c.Request.Context(), outcome.CaptureKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
