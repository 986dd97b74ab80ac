package mirrorrepo

import (
	"context"
	"time"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

const (
	currentCollection    = "current_prices"
	historicalCollection = "historical_prices"
)

// IMirrorRepository is the durable copy of the price cache: one current row per
// symbol plus an append-only history.
type IMirrorRepository interface {
	// Name identifies the backing store in logs and health output
	Name() string

	// SaveCurrent upserts each record by symbol and appends it to the history
	SaveCurrent(ctx context.Context, records []domain.PriceRecord) error

	// RecentCurrent returns current rows fetched at or after since, limited to symbols
	RecentCurrent(ctx context.Context, since time.Time, symbols []string) ([]domain.PriceRecord, error)

	// FindCurrent returns nil without error when no row at or after since exists
	FindCurrent(ctx context.Context, symbol string, since time.Time) (*domain.PriceRecord, error)

	// History returns points at or after since in ascending time order. When
	// limit is hit the newest limit points are kept.
	History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error)

	Ping(ctx context.Context) error
}
