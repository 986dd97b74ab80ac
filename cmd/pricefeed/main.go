package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/application/retry"
	"github.com/tuncanbit/pricefeed/internal/application/services"
	"github.com/tuncanbit/pricefeed/internal/infrastructure/clients"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
	"github.com/tuncanbit/pricefeed/internal/repositories/pricerepo"
	"github.com/tuncanbit/pricefeed/internal/server"
	"github.com/tuncanbit/pricefeed/pkg/config"
	"github.com/tuncanbit/pricefeed/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	drainTimeout   = 10 * time.Second
)

func main() {
	bootLogger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logger.NewWithConfig(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("Price feed stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	catalog := clients.NewCatalog(&cfg.Upstream)
	upstream, err := clients.NewUpstreamClient(&cfg.Upstream, logger)
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	mirror, closeMirror, err := mirrorrepo.Open(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		// Restore and history are unavailable without a mirror; the cache still works.
		logger.Error().Err(err).Str("driver", cfg.Mirror.Driver).Msg("Failed to open durable mirror, continuing in memory only")
		mirror = nil
	}
	defer func() {
		if err := closeMirror(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to close durable mirror")
		}
	}()

	store := pricerepo.New(mirror, pricerepo.Options{
		QueueSize:    cfg.Mirror.QueueSize,
		WriteTimeout: cfg.Mirror.WriteTimeoutDuration(),
	}, logger)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := store.Close(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("Pending mirror writes were not drained")
		}
	}()

	policy := retry.New(retry.Config{
		MaxAttempts:     cfg.Cache.MaxRetries,
		BackoffBase:     cfg.Cache.BackoffBaseDuration(),
		MaxBackoff:      cfg.Cache.MaxBackoffDuration(),
		DefaultCooldown: cfg.Cache.CooldownDuration(),
	}, store, logger)

	refresher := services.NewCacheRefresher(store, mirror, upstream, policy, catalog, services.RefresherConfig{
		CacheDuration:     cfg.Cache.CacheDuration(),
		RestoreWindow:     cfg.Cache.RestoreWindowDuration(),
		MirrorReadTimeout: cfg.Mirror.ReadTimeoutDuration(),
	}, logger)

	resolver := services.NewQueryResolver(refresher, store, mirror, policy, catalog, services.ResolverConfig{
		MirrorReadWindow:  cfg.Cache.MirrorReadWindowDuration(),
		MirrorReadTimeout: cfg.Mirror.ReadTimeoutDuration(),
		Provider:          upstream.Name(),
	}, logger)

	srv := server.New(cfg, resolver, logger)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	logger.Info().
		Str("provider", upstream.Name()).
		Int("assets", catalog.Len()).
		Str("mirror", cfg.Mirror.Driver).
		Dur("cache_duration", cfg.Cache.CacheDuration()).
		Msg("Price feed configured")

	if cfg.Cache.WarmOnStart {
		go func() {
			if !refresher.Refresh(ctx) {
				logger.Warn().Msg("Initial cache warm-up did not complete")
			}
		}()
	}

	return srv.Serve(ctx, ln)
}
