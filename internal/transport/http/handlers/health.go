package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	appRedis "github.com/annamusic/anna-api/internal/infra/redis"
)

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	pool      *pgxpool.Pool
	redis     *appRedis.Client
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(pool *pgxpool.Pool, redis *appRedis.Client) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now().UTC(),
		pool:      pool,
		redis:     redis,
	}
}

// Status reports process liveness.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
	})
}

// Ready reports dependency readiness, checking postgres and redis.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if h.pool != nil {
		if err := h.pool.Ping(c.Request.Context()); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	label := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}

	c.JSON(status, ReadinessResponse{
		Status: label,
		Checks: checks,
	})
}
