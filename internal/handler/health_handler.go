package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/arvichandar/facemark-api/internal/service"
)

// FaceHealthChecker reports recognizer liveness.
type FaceHealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler reports readiness of every dependency the marking flow
// needs: the primary store, the fallback store, and the recognizer.
type HealthHandler struct {
	db     *sqlx.DB
	redis  *redis.Client
	face   FaceHealthChecker
	ledger *service.LedgerService
}

// NewHealthHandler creates a new handler.
func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, face FaceHealthChecker, ledger *service.LedgerService) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, face: face, ledger: ledger}
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Check the database, the fallback store, and the recognizer. Degraded dependencies are reported but only a dead database makes the probe fail.
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /readyz [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["fallback_store"] = err.Error()
		} else {
			checks["fallback_store"] = "ok"
		}
	} else {
		checks["fallback_store"] = "disabled"
	}

	if err := h.face.Health(ctx); err != nil {
		checks["face_service"] = err.Error()
	} else {
		checks["face_service"] = "ok"
	}

	checks["pending_records"] = h.ledger.PendingCount(ctx)

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
