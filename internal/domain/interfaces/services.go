package interfaces

import (
	"context"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// UpstreamClient fetches the whole tracked set from one price provider in a single call.
// Errors are *domain.RateLimitedError or *domain.TransientError. Implementations do not retry.
type UpstreamClient interface {
	// Name identifies the provider in logs and health output
	Name() string

	// FetchBulk issues exactly one request covering every provider ID
	FetchBulk(ctx context.Context, providerIDs []string) ([]domain.RawRecord, error)
}
