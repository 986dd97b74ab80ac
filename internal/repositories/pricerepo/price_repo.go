package pricerepo

import (
	"context"
	"time"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// IPriceRepository is the in-memory price cache. It also owns the refresh and
// rate-limit timestamps so that a single lock guards the whole cache state.
type IPriceRepository interface {
	// Upsert replaces the record for rec.Symbol and queues a durable write
	Upsert(ctx context.Context, rec domain.PriceRecord) error

	// UpsertMany applies a whole sweep under one lock and returns how many records were written
	UpsertMany(ctx context.Context, recs []domain.PriceRecord) int

	// Restore loads records from the durable mirror without writing them back.
	// Records not newer than the in-memory copy are skipped and not counted.
	Restore(recs []domain.PriceRecord) int

	Get(symbol string) (domain.PriceRecord, error)
	GetAll() []domain.PriceRecord
	Len() int

	LastRefreshedAt() time.Time
	MarkRefreshed(t time.Time)
	RateLimitUntil() time.Time
	SetRateLimitUntil(t time.Time)

	// Close drains pending durable writes
	Close(ctx context.Context) error
}
