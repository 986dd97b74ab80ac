package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// CooldownStore holds the shared rate-limit deadline.
type CooldownStore interface {
	RateLimitUntil() time.Time
	SetRateLimitUntil(t time.Time)
}

// DefaultMaxBackoff caps the wait when Config.MaxBackoff is unset.
const DefaultMaxBackoff = 30 * time.Second

type FetchFunc func(ctx context.Context) ([]domain.RawRecord, error)

type Config struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	MaxBackoff      time.Duration
	DefaultCooldown time.Duration
}

// Policy runs a fetch with bounded attempts, capped exponential backoff and a
// cooldown window that is armed by rate-limit responses.
type Policy struct {
	cfg      Config
	cooldown CooldownStore
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

type Option func(*Policy)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithSleeper replaces the context-aware backoff wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = sleep }
}

func New(cfg Config, cooldown CooldownStore, logger zerolog.Logger, opts ...Option) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	p := &Policy{
		cfg:      cfg,
		cooldown: cooldown,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   logger.With().Str("component", "retry_policy").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute returns the first successful result. Failures are *domain.CooldownError
// (nothing was attempted), *domain.RateLimitedError (cooldown armed, loop aborted),
// *domain.ExhaustedError, or the context error.
func (p *Policy) Execute(ctx context.Context, fetch FetchFunc) ([]domain.RawRecord, error) {
	if remaining := p.CooldownRemaining(); remaining > 0 {
		p.logger.Warn().
			Dur("remaining", remaining).
			Msg("Rate limit cooldown active, skipping upstream call")
		return nil, &domain.CooldownError{Remaining: remaining}
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.Backoff(attempt)
			p.logger.Info().
				Err(lastErr).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Request failed, retrying after backoff")

			if err := p.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		records, err := fetch(ctx)
		if err == nil {
			return records, nil
		}

		var limited *domain.RateLimitedError
		if errors.As(err, &limited) {
			wait := limited.RetryAfter
			if wait <= 0 {
				wait = p.cfg.DefaultCooldown
			}
			until := p.now().Add(wait)
			p.cooldown.SetRateLimitUntil(until)
			p.logger.Warn().
				Int("attempt", attempt+1).
				Dur("cooldown", wait).
				Time("rate_limit_until", until).
				Msg("Upstream rate limit hit, backing off")
			return nil, &domain.RateLimitedError{RetryAfter: wait}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", p.cfg.MaxAttempts).
			Msg("Upstream fetch failed")
	}

	p.logger.Error().Err(lastErr).Int("attempts", p.cfg.MaxAttempts).Msg("All fetch attempts failed")
	return nil, &domain.ExhaustedError{Attempts: p.cfg.MaxAttempts, Last: lastErr}
}

// Backoff is the wait before the given 0-based attempt: min(base + 2^attempt s, cap).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	secs := p.cfg.BackoffBase.Seconds() + math.Pow(2, float64(attempt))
	if secs > p.cfg.MaxBackoff.Seconds() {
		return p.cfg.MaxBackoff
	}
	return time.Duration(secs * float64(time.Second))
}

// CooldownRemaining is zero when upstream calls are allowed.
func (p *Policy) CooldownRemaining() time.Duration {
	until := p.cooldown.RateLimitUntil()
	if until.IsZero() {
		return 0
	}
	if d := until.Sub(p.now()); d > 0 {
		return d
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
