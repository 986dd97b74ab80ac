package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
	"github.com/tuncanbit/pricefeed/internal/repositories/pricerepo"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
	maxHistoryPoints   = 10000

	// Mongo keeps milliseconds, so timestamps read back from a mirror are
	// compared at that precision.
	mirrorTimePrecision = time.Millisecond
)

// CooldownReporter exposes how long upstream calls stay suspended.
type CooldownReporter interface {
	CooldownRemaining() time.Duration
}

type ResolverConfig struct {
	MirrorReadWindow  time.Duration
	MirrorReadTimeout time.Duration
	Provider          string
}

type queryResolver struct {
	refresher ICacheRefresher
	store     pricerepo.IPriceRepository
	mirror    mirrorrepo.IMirrorRepository
	cooldown  CooldownReporter
	catalog   *domain.Catalog
	config    ResolverConfig
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQueryResolver serves reads from the mirror and then memory. mirror may be nil.
func NewQueryResolver(
	refresher ICacheRefresher,
	store pricerepo.IPriceRepository,
	mirror mirrorrepo.IMirrorRepository,
	cooldown CooldownReporter,
	catalog *domain.Catalog,
	cfg ResolverConfig,
	logger zerolog.Logger,
) IQueryResolver {
	return &queryResolver{
		refresher: refresher,
		store:     store,
		mirror:    mirror,
		cooldown:  cooldown,
		catalog:   catalog,
		config:    cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "query_resolver").Logger(),
	}
}

func (s *queryResolver) ListAll(ctx context.Context) ([]domain.PriceRecord, error) {
	refreshed := s.refresher.Refresh(ctx)

	if records := s.mirrorRecent(ctx, s.catalog.Symbols()); len(records) > 0 && !s.supersededByMemory(records...) {
		sort.Slice(records, func(i, j int) bool { return records[i].Symbol < records[j].Symbol })
		return records, nil
	}

	if records := s.store.GetAll(); len(records) > 0 {
		return records, nil
	}

	if err := s.unavailable(refreshed); err != nil {
		return nil, err
	}
	return []domain.PriceRecord{}, nil
}

func (s *queryResolver) Lookup(ctx context.Context, symbolOrID string) (domain.PriceRecord, error) {
	asset, ok := s.catalog.Resolve(symbolOrID)
	if !ok {
		return domain.PriceRecord{}, fmt.Errorf("%q: %w", symbolOrID, domain.ErrUnknownSymbol)
	}

	refreshed := s.refresher.Refresh(ctx)

	if rec := s.mirrorFind(ctx, asset.Symbol); rec != nil && !s.supersededByMemory(*rec) {
		return *rec, nil
	}

	rec, err := s.store.Get(asset.Symbol)
	if err == nil {
		return rec, nil
	}

	if err := s.unavailable(refreshed); err != nil {
		return domain.PriceRecord{}, err
	}
	return domain.PriceRecord{}, fmt.Errorf("%s: %w", asset.Symbol, domain.ErrDataUnavailable)
}

func (s *queryResolver) LookupMany(ctx context.Context, inputs []string) ([]domain.PriceRecord, error) {
	if len(inputs) == 0 {
		return s.ListAll(ctx)
	}

	symbols := s.resolveAll(inputs)
	if len(symbols) == 0 {
		return []domain.PriceRecord{}, nil
	}

	s.refresher.Refresh(ctx)

	found := make(map[string]domain.PriceRecord, len(symbols))
	if fromMirror := s.mirrorRecent(ctx, symbols); !s.supersededByMemory(fromMirror...) {
		for _, rec := range fromMirror {
			found[rec.Symbol] = rec
		}
	}

	records := make([]domain.PriceRecord, 0, len(symbols))
	for _, symbol := range symbols {
		if rec, ok := found[symbol]; ok {
			records = append(records, rec)
			continue
		}
		if rec, err := s.store.Get(symbol); err == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *queryResolver) History(ctx context.Context, symbolOrID string, days int) ([]domain.PricePoint, error) {
	if days < 1 || days > MaxHistoryDays {
		return nil, domain.ErrInvalidDays
	}
	if s.mirror == nil {
		return nil, domain.ErrMirrorDisabled
	}

	asset, ok := s.catalog.Resolve(symbolOrID)
	if !ok {
		return nil, fmt.Errorf("%q: %w", symbolOrID, domain.ErrUnknownSymbol)
	}

	readCtx, cancel := s.mirrorContext(ctx)
	defer cancel()

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	points, err := s.mirror.History(readCtx, asset.Symbol, since, maxHistoryPoints)
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", asset.Symbol, err)
	}
	if points == nil {
		points = []domain.PricePoint{}
	}
	return points, nil
}

func (s *queryResolver) Status(ctx context.Context) domain.CacheStatus {
	status := domain.CacheStatus{
		CacheFresh:                s.refresher.IsFresh(),
		RateLimitSecondsRemaining: domain.CeilSeconds(s.cooldown.CooldownRemaining()),
		LastRefreshedAt:           s.store.LastRefreshedAt(),
		Records:                   s.store.Len(),
		Source:                    s.config.Provider,
		Mirror:                    "none",
	}
	if s.mirror != nil {
		status.Mirror = s.mirror.Name()
		reachable := s.pingMirror(ctx)
		status.MirrorReachable = &reachable
	}
	return status
}

func (s *queryResolver) pingMirror(ctx context.Context) bool {
	pingCtx, cancel := s.mirrorContext(ctx)
	defer cancel()

	if err := s.mirror.Ping(pingCtx); err != nil {
		s.logger.Warn().Err(err).Str("mirror", s.mirror.Name()).Msg("Mirror ping failed")
		return false
	}
	return true
}

// unavailable picks the error for a read that found nothing in any tier.
func (s *queryResolver) unavailable(refreshed bool) error {
	if remaining := s.cooldown.CooldownRemaining(); remaining > 0 {
		return &domain.RateLimitedError{RetryAfter: remaining}
	}
	if !refreshed {
		return domain.ErrDataUnavailable
	}
	return nil
}

func (s *queryResolver) resolveAll(inputs []string) []string {
	seen := make(map[string]bool, len(inputs))
	symbols := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		asset, ok := s.catalog.Resolve(in)
		if !ok || seen[asset.Symbol] {
			continue
		}
		seen[asset.Symbol] = true
		symbols = append(symbols, asset.Symbol)
	}
	return symbols
}

// supersededByMemory reports whether memory holds a newer copy of any of the
// mirror rows. Durable writes are queued, so right after a refresh the mirror
// can still return the previous sweep.
func (s *queryResolver) supersededByMemory(records ...domain.PriceRecord) bool {
	for _, rec := range records {
		cur, err := s.store.Get(rec.Symbol)
		if err != nil {
			continue
		}
		if cur.FetchedAt.Truncate(mirrorTimePrecision).After(rec.FetchedAt.Truncate(mirrorTimePrecision)) {
			return true
		}
	}
	return false
}

func (s *queryResolver) mirrorRecent(ctx context.Context, symbols []string) []domain.PriceRecord {
	if s.mirror == nil {
		return nil
	}

	readCtx, cancel := s.mirrorContext(ctx)
	defer cancel()

	records, err := s.mirror.RecentCurrent(readCtx, s.now().Add(-s.config.MirrorReadWindow), symbols)
	if err != nil {
		s.logger.Warn().Err(err).Str("mirror", s.mirror.Name()).Msg("Mirror read failed, serving from memory")
		return nil
	}
	return records
}

func (s *queryResolver) mirrorFind(ctx context.Context, symbol string) *domain.PriceRecord {
	if s.mirror == nil {
		return nil
	}

	readCtx, cancel := s.mirrorContext(ctx)
	defer cancel()

	rec, err := s.mirror.FindCurrent(readCtx, symbol, s.now().Add(-s.config.MirrorReadWindow))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("mirror", s.mirror.Name()).Msg("Mirror lookup failed, serving from memory")
	}
	return rec
}

func (s *queryResolver) mirrorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.MirrorReadTimeout > 0 {
		return context.WithTimeout(ctx, s.config.MirrorReadTimeout)
	}
	return context.WithCancel(ctx)
}
