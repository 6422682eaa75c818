package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

type ReviewHandler struct {
	svc *attendance.Service
	db  *storage.PostgresStore
}

func NewReviewHandler(svc *attendance.Service, db *storage.PostgresStore) *ReviewHandler {
	return &ReviewHandler{svc: svc, db: db}
}

// List returns unresolved reviews, oldest first.
func (h *ReviewHandler) List(c *gin.Context) {
	reviews, err := h.svc.OpenReviews(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ReviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, dto.ReviewFromModel(&reviews[i]))
	}
	c.JSON(http.StatusOK, gin.H{"reviews": resp})
}

// Get returns one review by ID, resolved or not.
func (h *ReviewHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	review, err := h.db.GetReview(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if review == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	c.JSON(http.StatusOK, dto.ReviewFromModel(review))
}

// Resolve applies the one-shot approve/reject decision.
func (h *ReviewHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	var req dto.ResolveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	review, outcome, err := h.svc.Resolve(c.Request.Context(), id,
		models.ReviewResolution(req.Resolution), req.ResolvedBy, req.Notes, req.RegisterNumber)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrReviewNotFound), errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, storage.ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, storage.ErrDuplicateOutcome):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"review":  dto.ReviewFromModel(review),
		"outcome": dto.OutcomeFromModel(outcome),
	})
}
