package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tuncanbit/pricefeed/internal/application/retry"
	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/domain/interfaces"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
	"github.com/tuncanbit/pricefeed/internal/repositories/pricerepo"
)

const refreshKey = "refresh"

type RefresherConfig struct {
	CacheDuration     time.Duration
	RestoreWindow     time.Duration
	MirrorReadTimeout time.Duration
}

type cacheRefresher struct {
	store   pricerepo.IPriceRepository
	mirror  mirrorrepo.IMirrorRepository
	client  interfaces.UpstreamClient
	policy  *retry.Policy
	catalog *domain.Catalog
	config  RefresherConfig
	group   singleflight.Group
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCacheRefresher wires the refresh pipeline. mirror may be nil.
func NewCacheRefresher(
	store pricerepo.IPriceRepository,
	mirror mirrorrepo.IMirrorRepository,
	client interfaces.UpstreamClient,
	policy *retry.Policy,
	catalog *domain.Catalog,
	cfg RefresherConfig,
	logger zerolog.Logger,
) ICacheRefresher {
	return newCacheRefresher(store, mirror, client, policy, catalog, cfg, time.Now, logger)
}

func newCacheRefresher(
	store pricerepo.IPriceRepository,
	mirror mirrorrepo.IMirrorRepository,
	client interfaces.UpstreamClient,
	policy *retry.Policy,
	catalog *domain.Catalog,
	cfg RefresherConfig,
	now func() time.Time,
	logger zerolog.Logger,
) *cacheRefresher {
	return &cacheRefresher{
		store:   store,
		mirror:  mirror,
		client:  client,
		policy:  policy,
		catalog: catalog,
		config:  cfg,
		now:     now,
		logger:  logger.With().Str("component", "cache_refresher").Logger(),
	}
}

func (s *cacheRefresher) IsFresh() bool {
	last := s.store.LastRefreshedAt()
	if last.IsZero() {
		return false
	}
	return s.now().Sub(last) < s.config.CacheDuration
}

// Refresh joins any refresh already in flight. The refresh itself is detached
// from ctx, so a caller that gives up returns false while the work completes.
func (s *cacheRefresher) Refresh(ctx context.Context) bool {
	if s.IsFresh() {
		return true
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		if s.IsFresh() {
			return true, nil
		}
		return s.refresh(detached), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (s *cacheRefresher) refresh(ctx context.Context) bool {
	start := s.now()
	logger := s.logger.With().Str("run_id", uuid.NewString()).Logger()

	if s.restoreFromMirror(ctx, logger) {
		return true
	}

	raw, err := s.policy.Execute(ctx, func(ctx context.Context) ([]domain.RawRecord, error) {
		return s.client.FetchBulk(ctx, s.catalog.ProviderIDs())
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("provider", s.client.Name()).
			Int("cached_records", s.store.Len()).
			Msg("Refresh failed, keeping cached data")
		return false
	}

	now := s.now()
	records, dropped := normalize(raw, s.catalog, now)
	written := s.store.UpsertMany(ctx, records)
	if written == 0 {
		logger.Warn().
			Int("received", len(raw)).
			Int("dropped", dropped).
			Msg("Upstream returned no usable records")
		return false
	}

	s.store.MarkRefreshed(now)
	logger.Info().
		Str("provider", s.client.Name()).
		Int("records", written).
		Int("dropped", dropped).
		Dur("duration", s.now().Sub(start)).
		Msg("Price cache refreshed")
	return true
}

// restoreFromMirror loads recent rows from the durable mirror. Restored
// records are not written back.
func (s *cacheRefresher) restoreFromMirror(ctx context.Context, logger zerolog.Logger) bool {
	if s.mirror == nil {
		return false
	}

	readCtx, cancel := s.mirrorContext(ctx)
	defer cancel()

	now := s.now()
	records, err := s.mirror.RecentCurrent(readCtx, now.Add(-s.config.RestoreWindow), s.catalog.Symbols())
	if err != nil {
		logger.Warn().Err(err).Str("mirror", s.mirror.Name()).Msg("Mirror restore failed")
		return false
	}
	if len(records) == 0 {
		return false
	}

	restored := s.store.Restore(records)
	if restored == 0 {
		return false
	}

	s.store.MarkRefreshed(now)
	logger.Info().
		Str("mirror", s.mirror.Name()).
		Int("records", restored).
		Msg("Price cache restored from mirror")
	return true
}

func (s *cacheRefresher) mirrorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.MirrorReadTimeout > 0 {
		return context.WithTimeout(ctx, s.config.MirrorReadTimeout)
	}
	return context.WithCancel(ctx)
}
