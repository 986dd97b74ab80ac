package services

import (
	"math"
	"time"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// normalize maps upstream records onto the catalog. Records for untracked
// provider IDs or without a usable price are dropped; absent optional fields
// become 0. dropped counts the records that were skipped.
func normalize(raw []domain.RawRecord, catalog *domain.Catalog, now time.Time) (records []domain.PriceRecord, dropped int) {
	records = make([]domain.PriceRecord, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, r := range raw {
		asset, ok := catalog.ByProviderID(r.ProviderID)
		if !ok || seen[asset.Symbol] {
			dropped++
			continue
		}
		if r.Price == nil || !finite(*r.Price) || *r.Price < 0 {
			dropped++
			continue
		}
		seen[asset.Symbol] = true

		name := asset.Name
		if name == "" {
			name = r.Name
		}

		records = append(records, domain.PriceRecord{
			Symbol:           asset.Symbol,
			ProviderID:       asset.ProviderID,
			DisplayName:      name,
			Price:            *r.Price,
			ChangePercent24h: valueOrZero(r.ChangePercent24h),
			Volume:           valueOrZero(r.Volume),
			MarketCap:        valueOrZero(r.MarketCap),
			FetchedAt:        now,
		})
	}
	return records, dropped
}

func valueOrZero(v *float64) float64 {
	if v == nil || !finite(*v) {
		return 0
	}
	return *v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
