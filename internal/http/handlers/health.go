package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Pinger func(ctx context.Context) error

type HealthHandler struct {
	db    Pinger
	redis Pinger
}

func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz checks the backing stores. Redis being down degrades the rate
// limiter but not correctness, so it is reported without failing readiness.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.db != nil {
		if err := h.db(ctx.Request.Context()); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "db": err.Error()})
			return
		}
	}

	redisStatus := "ok"

	if h.redis != nil {
		if err := h.redis(ctx.Request.Context()); err != nil {
			redisStatus = "down"
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "redis": redisStatus})
}
