package pricerepo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
)

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
}

type priceRepository struct {
	mu              sync.RWMutex
	records         map[string]domain.PriceRecord
	lastRefreshedAt time.Time
	rateLimitUntil  time.Time

	writer *mirrorWriter
	logger zerolog.Logger
}

// New creates an empty cache. mirror may be nil, in which case writes stay in memory.
func New(mirror mirrorrepo.IMirrorRepository, opts Options, logger zerolog.Logger) IPriceRepository {
	logger = logger.With().Str("component", "price_repository").Logger()

	r := &priceRepository{
		records: make(map[string]domain.PriceRecord),
		logger:  logger,
	}
	if mirror != nil {
		r.writer = newMirrorWriter(mirror, opts, logger)
	}
	return r
}

func (r *priceRepository) Upsert(ctx context.Context, rec domain.PriceRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	rec.Symbol = strings.ToUpper(rec.Symbol)

	r.mu.Lock()
	r.records[rec.Symbol] = rec
	r.mu.Unlock()

	r.writeThrough([]domain.PriceRecord{rec})
	return nil
}

func (r *priceRepository) UpsertMany(ctx context.Context, recs []domain.PriceRecord) int {
	valid := r.filterValid(recs)
	if len(valid) == 0 {
		return 0
	}

	r.mu.Lock()
	for _, rec := range valid {
		r.records[rec.Symbol] = rec
	}
	r.mu.Unlock()

	r.writeThrough(valid)
	return len(valid)
}

func (r *priceRepository) Restore(recs []domain.PriceRecord) int {
	valid := r.filterValid(recs)

	r.mu.Lock()
	defer r.mu.Unlock()
	applied := 0
	for _, rec := range valid {
		if cur, ok := r.records[rec.Symbol]; ok && !cur.FetchedAt.Before(rec.FetchedAt) {
			continue
		}
		r.records[rec.Symbol] = rec
		applied++
	}
	return applied
}

func (r *priceRepository) Get(symbol string) (domain.PriceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[strings.ToUpper(symbol)]
	if !ok {
		return domain.PriceRecord{}, fmt.Errorf("%s: %w", symbol, domain.ErrRecordNotFound)
	}
	return rec, nil
}

func (r *priceRepository) GetAll() []domain.PriceRecord {
	r.mu.RLock()
	out := make([]domain.PriceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *priceRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *priceRepository) LastRefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefreshedAt
}

// MarkRefreshed never moves the refresh time backwards.
func (r *priceRepository) MarkRefreshed(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastRefreshedAt) {
		r.lastRefreshedAt = t
	}
}

func (r *priceRepository) RateLimitUntil() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rateLimitUntil
}

func (r *priceRepository) SetRateLimitUntil(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimitUntil = t
}

func (r *priceRepository) Close(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.close(ctx)
}

func (r *priceRepository) writeThrough(recs []domain.PriceRecord) {
	if r.writer == nil {
		return
	}
	r.writer.enqueue(recs)
}

func (r *priceRepository) filterValid(recs []domain.PriceRecord) []domain.PriceRecord {
	valid := make([]domain.PriceRecord, 0, len(recs))
	for _, rec := range recs {
		if err := validate(rec); err != nil {
			r.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Skipping invalid price record")
			continue
		}
		rec.Symbol = strings.ToUpper(rec.Symbol)
		valid = append(valid, rec)
	}
	return valid
}

var errInvalidRecord = errors.New("invalid price record")

func validate(rec domain.PriceRecord) error {
	if strings.TrimSpace(rec.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", errInvalidRecord)
	}
	if math.IsNaN(rec.Price) || math.IsInf(rec.Price, 0) || rec.Price < 0 {
		return fmt.Errorf("%w: price %v", errInvalidRecord, rec.Price)
	}
	return nil
}
