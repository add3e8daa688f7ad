package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks liveness of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	db      Pinger
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now().UTC()}
}

// Health reports process and database liveness.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	overall := "ok"
	dbState := "up"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			dbState = "down"
		}
	}
	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbState,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
