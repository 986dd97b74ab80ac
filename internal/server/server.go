package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/application/services"
	"github.com/tuncanbit/pricefeed/internal/server/handlers"
	"github.com/tuncanbit/pricefeed/internal/server/middleware"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Resolver   services.IQueryResolver
	Cfg        *config.Config
	Logger     zerolog.Logger
	Router     *gin.Engine
	httpServer *http.Server
}

func New(cfg *config.Config, resolver services.IQueryResolver, logger zerolog.Logger) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		Cfg:      cfg,
		Resolver: resolver,
		Logger:   logger.With().Str("component", "server").Logger(),
		Router:   router,
	}
	s.SetupRouter(logger)
	return s
}

func (s *Server) SetupRouter(logger zerolog.Logger) {
	middleware.NewMiddleware(s.Cfg.Server.AllowedOrigins, logger).SetupMiddleware(s.Router)
	handlers.New(s.Resolver, logger).SetupHandlers(s.Router)
}

// Listen binds the configured port, moving to the next port while the
// current one is in use, up to PortAttempts tries.
func (s *Server) Listen() (net.Listener, error) {
	host := s.Cfg.Server.Host
	port := s.Cfg.Server.Port
	attempts := s.Cfg.Server.PortAttempts
	if attempts < 1 || port == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port+i))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		lastErr = err
		s.Logger.Warn().
			Str("addr", addr).
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Msg("Port in use, trying next port")
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", port, port+attempts-1, lastErr)
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Router,
		ReadTimeout:  time.Duration(s.Cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	s.Logger.Info().Msgf("Starting server on %s", ln.Addr())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.Logger.Info().Msg("Server exited gracefully")
	return nil
}
