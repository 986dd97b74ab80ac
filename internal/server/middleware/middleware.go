package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"

	maxRequestIDLength = 128
)

type Middleware struct {
	allowedOrigins map[string]bool
	allowAny       bool
	logger         zerolog.Logger
}

func NewMiddleware(allowedOrigins []string, logger zerolog.Logger) *Middleware {
	m := &Middleware{
		allowedOrigins: make(map[string]bool, len(allowedOrigins)),
		logger:         logger.With().Str("component", "http").Logger(),
	}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			m.allowAny = true
			continue
		}
		if origin != "" {
			m.allowedOrigins[origin] = true
		}
	}
	return m
}

func (m *Middleware) SetupMiddleware(router *gin.Engine) {
	router.Use(m.RequestID())
	router.Use(m.CORS())
	router.Use(m.RequestLogger())
	router.Use(m.Recovery())
	router.Use(SecurityHeaders())
}

// CORS reflects an allow-listed Origin, falls back to "*" when the list
// contains it, and answers preflight requests with an empty 200.
func (m *Middleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && m.allowedOrigins[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case m.allowAny:
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
		Output:    io.Discard,
		Formatter: func(param gin.LogFormatterParams) string {
			event := m.logger.Info()
			switch {
			case param.StatusCode >= http.StatusInternalServerError:
				event = m.logger.Error()
			case param.StatusCode >= http.StatusBadRequest:
				event = m.logger.Warn()
			}

			requestID, _ := param.Keys[RequestIDKey].(string)
			event.
				Str("request_id", requestID).
				Str("method", param.Method).
				Str("path", param.Path).
				Int("status", param.StatusCode).
				Dur("latency", param.Latency).
				Str("client_ip", param.ClientIP).
				Str("user_agent", param.Request.UserAgent()).
				Msg("HTTP Request")
			return ""
		},
	})
}

func (m *Middleware) Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		m.logger.Error().
			Interface("panic", recovered).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("path", c.Request.URL.Path).
			Msg("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Internal server error"})
	})
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
