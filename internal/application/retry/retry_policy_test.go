package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

type memCooldown struct {
	mu    sync.Mutex
	until time.Time
}

func (m *memCooldown) RateLimitUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.until
}

func (m *memCooldown) SetRateLimitUntil(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.until = t
}

type harness struct {
	now     time.Time
	slept   []time.Duration
	store   *memCooldown
	policy  *Policy
	fetches int
}

func newHarness(cfg Config) *harness {
	h := &harness{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), store: &memCooldown{}}
	h.policy = New(cfg, h.store, zerolog.Nop(),
		WithClock(func() time.Time { return h.now }),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			h.now = h.now.Add(d)
			return nil
		}),
	)
	return h
}

func defaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BackoffBase:     2 * time.Second,
		MaxBackoff:      30 * time.Second,
		DefaultCooldown: 300 * time.Second,
	}
}

func price(v float64) *float64 { return &v }

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	h := newHarness(defaultConfig())

	records, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return []domain.RawRecord{{ProviderID: "bitcoin", Price: price(1)}}, nil
	})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, h.fetches)
	assert.Empty(t, h.slept)
}

func TestExecuteRecoversAfterTransientErrors(t *testing.T) {
	h := newHarness(defaultConfig())

	records, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		if h.fetches < 3 {
			return nil, &domain.TransientError{Op: "test", StatusCode: 502, Err: errors.New("bad gateway")}
		}
		return []domain.RawRecord{{ProviderID: "bitcoin", Price: price(1)}}, nil
	})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, h.fetches)
	assert.Equal(t, []time.Duration{4 * time.Second, 6 * time.Second}, h.slept)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	cfg := defaultConfig()
	h := newHarness(cfg)

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return nil, &domain.TransientError{Op: "test", Err: errors.New("timeout")}
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExhausted))
	assert.True(t, errors.Is(err, domain.ErrTransient), "last error stays reachable")
	assert.Equal(t, cfg.MaxAttempts, h.fetches)

	var total time.Duration
	for _, d := range h.slept {
		assert.LessOrEqual(t, d, cfg.MaxBackoff)
		total += d
	}
	assert.LessOrEqual(t, total, time.Duration(cfg.MaxAttempts)*cfg.MaxBackoff)
	assert.Equal(t, []time.Duration{4 * time.Second, 6 * time.Second, 10 * time.Second, 18 * time.Second}, h.slept)
}

func TestExecuteBackoffIsCapped(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxAttempts = 8
	h := newHarness(cfg)

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return nil, &domain.TransientError{Op: "test", Err: errors.New("down")}
	})

	require.Error(t, err)
	assert.Equal(t, 8, h.fetches)
	require.Len(t, h.slept, 7)
	assert.Equal(t, 30*time.Second, h.slept[4])
	assert.Equal(t, 30*time.Second, h.slept[6])
}

func TestExecuteRateLimitArmsCooldownAndAborts(t *testing.T) {
	h := newHarness(defaultConfig())

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return nil, &domain.RateLimitedError{RetryAfter: 60 * time.Second}
	})

	var limited *domain.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 60*time.Second, limited.RetryAfter)
	assert.Equal(t, 1, h.fetches, "no retries into a closed window")
	assert.Empty(t, h.slept)
	assert.Equal(t, h.now.Add(60*time.Second), h.store.RateLimitUntil())
}

func TestExecuteRateLimitUsesDefaultCooldown(t *testing.T) {
	h := newHarness(defaultConfig())

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		return nil, &domain.RateLimitedError{}
	})

	require.Error(t, err)
	assert.Equal(t, 300*time.Second, h.policy.CooldownRemaining())
}

func TestExecuteDuringCooldownMakesNoCalls(t *testing.T) {
	h := newHarness(defaultConfig())
	h.store.SetRateLimitUntil(h.now.Add(90 * time.Second))

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimitedCooldown))
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Zero(t, h.fetches)

	var cooldown *domain.CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 90*time.Second, cooldown.Remaining)

	h.now = h.now.Add(91 * time.Second)
	_, err = h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.fetches, "calls resume once the window passes")
}

func TestExecuteTransientThenRateLimited(t *testing.T) {
	h := newHarness(defaultConfig())

	_, err := h.policy.Execute(context.Background(), func(context.Context) ([]domain.RawRecord, error) {
		h.fetches++
		if h.fetches == 1 {
			return nil, &domain.TransientError{Op: "test", Err: errors.New("reset")}
		}
		return nil, &domain.RateLimitedError{RetryAfter: 10 * time.Second}
	})

	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Equal(t, 2, h.fetches)
}

func TestExecuteContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &memCooldown{}
	policy := New(defaultConfig(), store, zerolog.Nop())

	calls := 0
	_, err := policy.Execute(ctx, func(context.Context) ([]domain.RawRecord, error) {
		calls++
		cancel()
		return nil, &domain.TransientError{Op: "test", Err: errors.New("flaky")}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	p := New(defaultConfig(), &memCooldown{}, zerolog.Nop())

	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 4*time.Second, p.Backoff(1))
	assert.Equal(t, 6*time.Second, p.Backoff(2))
	assert.Equal(t, 10*time.Second, p.Backoff(3))
	assert.Equal(t, 18*time.Second, p.Backoff(4))
	assert.Equal(t, 30*time.Second, p.Backoff(5))
	assert.Equal(t, 30*time.Second, p.Backoff(80))
}

func TestBackoffUnsetCapFallsBackToDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxBackoff = 0
	p := New(cfg, &memCooldown{}, zerolog.Nop())

	assert.Equal(t, 18*time.Second, p.Backoff(4))
	assert.Equal(t, DefaultMaxBackoff, p.Backoff(5))
	assert.Equal(t, DefaultMaxBackoff, p.Backoff(40))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
