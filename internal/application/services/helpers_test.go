package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/application/retry"
	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
	"github.com/tuncanbit/pricefeed/internal/repositories/pricerepo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fetchResult struct {
	records []domain.RawRecord
	err     error
}

// fakeUpstream replays results in order and repeats the last one.
type fakeUpstream struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{}
}

func (f *fakeUpstream) Name() string { return "fake" }

func (f *fakeUpstream) FetchBulk(ctx context.Context, providerIDs []string) ([]domain.RawRecord, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.records, r.err
}

func (f *fakeUpstream) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeUpstream) Then(records []domain.RawRecord, err error) *fakeUpstream {
	f.mu.Lock()
	f.results = append(f.results, fetchResult{records: records, err: err})
	f.mu.Unlock()
	return f
}

type fakeMirror struct {
	mu        sync.Mutex
	current   map[string]domain.PriceRecord
	points    []domain.PricePoint
	err       error
	reads     int
	saveDelay time.Duration
}

func newFakeMirror(records ...domain.PriceRecord) *fakeMirror {
	m := &fakeMirror{current: make(map[string]domain.PriceRecord)}
	for _, r := range records {
		m.current[r.Symbol] = r
	}
	return m
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) SaveCurrent(ctx context.Context, records []domain.PriceRecord) error {
	if m.saveDelay > 0 {
		time.Sleep(m.saveDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, r := range records {
		m.current[r.Symbol] = r
	}
	return nil
}

func (m *fakeMirror) RecentCurrent(ctx context.Context, since time.Time, symbols []string) ([]domain.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(s)] = true
	}
	var out []domain.PriceRecord
	for _, r := range m.current {
		if !r.FetchedAt.Before(since) && (len(wanted) == 0 || wanted[r.Symbol]) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *fakeMirror) FindCurrent(ctx context.Context, symbol string, since time.Time) (*domain.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.current[strings.ToUpper(symbol)]
	if !ok || r.FetchedAt.Before(since) {
		return nil, nil
	}
	return &r, nil
}

func (m *fakeMirror) History(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.PricePoint
	for _, p := range m.points {
		if p.Symbol == symbol && !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *fakeMirror) Ping(ctx context.Context) error { return m.err }

func (m *fakeMirror) price(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[symbol].Price
}

var _ mirrorrepo.IMirrorRepository = (*fakeMirror)(nil)

func ptr(v float64) *float64 { return &v }

func testCatalog() *domain.Catalog {
	return domain.NewCatalog([]domain.Asset{
		{Symbol: "BTC", ProviderID: "bitcoin", Name: "Bitcoin"},
		{Symbol: "ETH", ProviderID: "ethereum", Name: "Ethereum"},
		{Symbol: "SOL", ProviderID: "solana", Name: "Solana"},
	})
}

type harness struct {
	clock     *fakeClock
	upstream  *fakeUpstream
	store     pricerepo.IPriceRepository
	policy    *retry.Policy
	refresher *cacheRefresher
	resolver  *queryResolver
	sleeps    []time.Duration
	sleepMu   sync.Mutex
}

// newHarness builds the refresh pipeline around fakes. Pass a nil mirror to
// run without one. The store does not write through to the mirror.
func newHarness(mirror *fakeMirror) *harness {
	return buildHarness(mirror, false)
}

// newWriteThroughHarness also queues the store's durable writes to mirror.
func newWriteThroughHarness(t *testing.T, mirror *fakeMirror) *harness {
	h := buildHarness(mirror, true)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.store.Close(ctx)
	})
	return h
}

func buildHarness(mirror *fakeMirror, writeThrough bool) *harness {
	h := &harness{
		clock:    newFakeClock(),
		upstream: &fakeUpstream{},
	}

	var m mirrorrepo.IMirrorRepository
	if mirror != nil {
		m = mirror
	}

	logger := zerolog.Nop()
	var storeMirror mirrorrepo.IMirrorRepository
	if writeThrough {
		storeMirror = m
	}
	h.store = pricerepo.New(storeMirror, pricerepo.Options{}, logger)
	h.policy = retry.New(retry.Config{
		MaxAttempts:     5,
		BackoffBase:     2 * time.Second,
		MaxBackoff:      30 * time.Second,
		DefaultCooldown: 300 * time.Second,
	}, h.store, logger,
		retry.WithClock(h.clock.Now),
		retry.WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.sleepMu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.sleepMu.Unlock()
			return nil
		}),
	)

	catalog := testCatalog()
	h.refresher = newCacheRefresher(h.store, m, h.upstream, h.policy, catalog, RefresherConfig{
		CacheDuration: 300 * time.Second,
		RestoreWindow: time.Hour,
	}, h.clock.Now, logger)

	h.resolver = NewQueryResolver(h.refresher, h.store, m, h.policy, catalog, ResolverConfig{
		MirrorReadWindow: 30 * time.Minute,
		Provider:         "fake",
	}, logger).(*queryResolver)
	h.resolver.now = h.clock.Now
	return h
}

func (h *harness) totalSleep() time.Duration {
	h.sleepMu.Lock()
	defer h.sleepMu.Unlock()
	var total time.Duration
	for _, d := range h.sleeps {
		total += d
	}
	return total
}

var errUpstreamDown = &domain.TransientError{Op: "fetch", StatusCode: 502, Err: errors.New("bad gateway")}
