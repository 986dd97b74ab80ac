package services

import (
	"context"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

type IQueryResolver interface {
	// ListAll returns every tracked record, mirror first, then memory
	ListAll(ctx context.Context) ([]domain.PriceRecord, error)

	// Lookup resolves a display symbol or provider ID to its current record
	Lookup(ctx context.Context, symbolOrID string) (domain.PriceRecord, error)

	// LookupMany skips unknown and unavailable inputs; no inputs means all records
	LookupMany(ctx context.Context, inputs []string) ([]domain.PriceRecord, error)

	// History returns mirror points for the last days, oldest first
	History(ctx context.Context, symbolOrID string, days int) ([]domain.PricePoint, error)

	Status(ctx context.Context) domain.CacheStatus
}
