package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/pkg/config"
	"github.com/tuncanbit/pricefeed/pkg/currency"
)

// AlpacaClient serves equity quotes from Alpaca market data snapshots.
type AlpacaClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	timeout   time.Duration
	transport http.RoundTripper
	now       func() time.Time
	logger    zerolog.Logger
}

func NewAlpacaClient(cfg *config.UpstreamConfig, logger zerolog.Logger) *AlpacaClient {
	return &AlpacaClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		timeout:   cfg.TimeoutDuration(),
		transport: newHTTPClient(cfg.TimeoutDuration()).Transport,
		now:       time.Now,
		logger:    logger.With().Str("component", "alpaca_api_client").Logger(),
	}
}

func (c *AlpacaClient) Name() string { return config.ProviderAlpaca }

func (c *AlpacaClient) FetchBulk(ctx context.Context, providerIDs []string) ([]domain.RawRecord, error) {
	const op = "alpaca snapshots"

	// The marketdata client retries 429s on its own; the transport turns them
	// into errors so the caller's retry policy stays in charge.
	rt := &throttleTransport{ctx: ctx, base: c.transport, now: c.now}
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    c.apiKey,
		APISecret: c.apiSecret,
		BaseURL:   c.baseURL,
		HTTPClient: &http.Client{
			Timeout:   c.timeout,
			Transport: rt,
		},
	})

	snapshots, err := md.GetSnapshots(providerIDs, marketdata.GetSnapshotRequest{})
	if err != nil {
		if limited := rt.rateLimited(); limited != nil {
			return nil, limited
		}
		var rl *domain.RateLimitedError
		if errors.As(err, &rl) {
			return nil, rl
		}
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("fetching snapshots failed: %w", err)}
	}

	records := make([]domain.RawRecord, 0, len(snapshots))
	for _, symbol := range providerIDs {
		snap, ok := snapshots[symbol]
		if !ok || snap == nil {
			continue
		}
		records = append(records, snapshotToRecord(symbol, snap))
	}

	c.logger.Debug().Int("count", len(records)).Msg("Fetched equity snapshots")
	return records, nil
}

func snapshotToRecord(symbol string, snap *marketdata.Snapshot) domain.RawRecord {
	rec := domain.RawRecord{
		ProviderID: symbol,
		Symbol:     strings.ToUpper(symbol),
		Name:       strings.ToUpper(symbol),
	}

	switch {
	case snap.LatestTrade != nil && snap.LatestTrade.Price > 0:
		p := snap.LatestTrade.Price
		rec.Price = &p
	case snap.DailyBar != nil && snap.DailyBar.Close > 0:
		p := snap.DailyBar.Close
		rec.Price = &p
	}

	if snap.DailyBar != nil {
		v := float64(snap.DailyBar.Volume)
		rec.Volume = &v
	}

	if rec.Price != nil && snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		change := currency.PercentChange(*rec.Price, snap.PrevDailyBar.Close)
		rec.ChangePercent24h = &change
	}

	return rec
}

type throttleTransport struct {
	ctx  context.Context
	base http.RoundTripper
	now  func() time.Time

	mu      sync.Mutex
	limited *domain.RateLimitedError
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	limited := &domain.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), t.now())}
	t.mu.Lock()
	t.limited = limited
	t.mu.Unlock()
	return nil, limited
}

func (t *throttleTransport) rateLimited() *domain.RateLimitedError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limited
}
