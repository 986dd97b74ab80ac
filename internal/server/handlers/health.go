package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tuncanbit/pricefeed/internal/application/services"
	"github.com/tuncanbit/pricefeed/internal/domain"
)

type HealthHandler struct {
	resolver services.IQueryResolver
}

func NewHealthHandler(resolver services.IQueryResolver) *HealthHandler {
	return &HealthHandler{resolver: resolver}
}

// Health reports cache state. It never triggers a refresh.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.resolver.Status(c.Request.Context())

	resp := domain.HealthResponse{
		Status:                    "ok",
		CacheFresh:                status.CacheFresh,
		RateLimitSecondsRemaining: status.RateLimitSecondsRemaining,
		Source:                    status.Source,
		Mirror:                    status.Mirror,
		MirrorReachable:           status.MirrorReachable,
		Records:                   status.Records,
		Timestamp:                 time.Now().UTC(),
	}
	if !status.LastRefreshedAt.IsZero() {
		last := status.LastRefreshedAt.UTC()
		resp.LastRefreshedAt = &last
	}

	c.JSON(http.StatusOK, resp)
}
