package domain

import "time"

// PriceRecord is the cached snapshot for one tracked symbol.
type PriceRecord struct {
	Symbol           string    `json:"symbol"`
	ProviderID       string    `json:"providerId"`
	DisplayName      string    `json:"displayName"`
	Price            float64   `json:"price"`
	ChangePercent24h float64   `json:"changePercent24h"`
	Volume           float64   `json:"volume"`
	MarketCap        float64   `json:"marketCap"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// RawRecord is one asset as returned by an upstream provider, before normalization.
// Nil pointers mean the provider omitted the field.
type RawRecord struct {
	ProviderID       string
	Symbol           string
	Name             string
	Price            *float64
	ChangePercent24h *float64
	Volume           *float64
	MarketCap        *float64
}

// PricePoint is one entry of the durable price history.
type PricePoint struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	ChangePercent24h float64   `json:"changePercent24h"`
	Volume           float64   `json:"volume"`
	MarketCap        float64   `json:"marketCap"`
	Timestamp        time.Time `json:"timestamp"`
}

func (r PriceRecord) Point() PricePoint {
	return PricePoint{
		Symbol:           r.Symbol,
		Price:            r.Price,
		ChangePercent24h: r.ChangePercent24h,
		Volume:           r.Volume,
		MarketCap:        r.MarketCap,
		Timestamp:        r.FetchedAt,
	}
}

// CacheStatus summarizes the cache for health reporting.
type CacheStatus struct {
	CacheFresh                bool
	RateLimitSecondsRemaining int
	LastRefreshedAt           time.Time
	Records                   int
	Source                    string
	Mirror                    string
	// MirrorReachable is nil when no mirror is configured.
	MirrorReachable *bool
}
