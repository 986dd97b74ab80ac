package services

import "context"

type ICacheRefresher interface {
	// Refresh reports whether the cache is fresh after the call. It never
	// returns an error and a failed refresh never evicts cached records.
	Refresh(ctx context.Context) bool

	IsFresh() bool
}
