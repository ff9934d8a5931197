package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// UpstreamStatus reports whether calls to the extraction API are being
// held back after a rate limit.
type UpstreamStatus interface {
	CircuitOpenUntil() (time.Time, bool)
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	db       Pinger
	upstream UpstreamStatus
}

// NewHealthHandler creates a HealthHandler. upstream may be nil.
func NewHealthHandler(db Pinger, upstream UpstreamStatus) *HealthHandler {
	return &HealthHandler{db: db, upstream: upstream}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz. The database decides readiness; an open
// upstream circuit is reported but does not fail the check, since queued
// jobs wait it out.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	body := gin.H{"status": "ok", "database": "ok"}
	if h.upstream != nil {
		body["upstream"] = upstreamState(h.upstream)
	}
	if err := h.db.PingContext(ctx); err != nil {
		body["status"] = "unavailable"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func upstreamState(u UpstreamStatus) gin.H {
	resetAt, open := u.CircuitOpenUntil()
	if !open {
		return gin.H{"status": "ok"}
	}
	return gin.H{"status": "rate_limited", "retry_at": resetAt.UTC().Format(time.RFC3339)}
}
