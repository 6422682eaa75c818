package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/ledger"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

type SystemHandler struct {
	db       *storage.PostgresStore
	captures *storage.CaptureStore
	producer *queue.Producer
	ledger   *ledger.Ledger
}

func NewSystemHandler(db *storage.PostgresStore, captures *storage.CaptureStore, producer *queue.Producer, l *ledger.Ledger) *SystemHandler {
	return &SystemHandler{db: db, captures: captures, producer: producer, ledger: l}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.captures.Ping(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

// VerifyLedger walks the audit chain and reports the first broken link.
func (h *SystemHandler) VerifyLedger(c *gin.Context) {
	entries, err := h.db.ListLedgerEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	broken, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.LedgerVerifyResponse{
		Intact:    broken == 0,
		BrokenSeq: broken,
		Entries:   len(entries),
	})
}
