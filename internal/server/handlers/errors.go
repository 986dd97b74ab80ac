package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// writeError maps resolver errors onto status codes and the JSON error body.
func writeError(c *gin.Context, logger zerolog.Logger, err error) {
	var limited *domain.RateLimitedError
	var cooldown *domain.CooldownError

	switch {
	case errors.As(err, &limited):
		writeRateLimited(c, limited.RetryAfterSeconds())
	case errors.As(err, &cooldown):
		writeRateLimited(c, domain.CeilSeconds(cooldown.Remaining))
	case errors.Is(err, domain.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "Symbol not found: " + c.Param("symbol")})
	case errors.Is(err, domain.ErrInvalidDays):
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: domain.ErrInvalidDays.Error()})
	case errors.Is(err, domain.ErrMirrorDisabled):
		c.JSON(http.StatusServiceUnavailable, domain.ErrorResponse{Error: "Historical data requires a durable store"})
	case errors.Is(err, domain.ErrDataUnavailable):
		c.JSON(http.StatusServiceUnavailable, domain.ErrorResponse{Error: "Price data temporarily unavailable"})
	default:
		logger.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Internal server error"})
	}
}

func writeRateLimited(c *gin.Context, seconds int) {
	c.JSON(http.StatusTooManyRequests, domain.ErrorResponse{
		Error:             "Upstream rate limit in effect, retry later",
		RetryAfterSeconds: &seconds,
	})
}
