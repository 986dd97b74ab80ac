package pricerepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/internal/repositories/mirrorrepo"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// mirrorWriter drains durable writes on its own goroutine so the in-memory
// path never waits on the mirror.
type mirrorWriter struct {
	mirror  mirrorrepo.IMirrorRepository
	queue   chan []domain.PriceRecord
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newMirrorWriter(mirror mirrorrepo.IMirrorRepository, opts Options, logger zerolog.Logger) *mirrorWriter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	w := &mirrorWriter{
		mirror:  mirror,
		queue:   make(chan []domain.PriceRecord, opts.QueueSize),
		timeout: opts.WriteTimeout,
		logger:  logger.With().Str("mirror", mirror.Name()).Logger(),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *mirrorWriter) enqueue(recs []domain.PriceRecord) {
	batch := make([]domain.PriceRecord, len(recs))
	copy(batch, recs)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn().Int("records", len(batch)).Msg("Mirror writer closed, dropping durable write")
		return
	}

	select {
	case w.queue <- batch:
	default:
		w.logger.Warn().Int("records", len(batch)).Msg("Mirror write queue full, dropping durable write")
	}
}

func (w *mirrorWriter) run() {
	defer close(w.done)
	for batch := range w.queue {
		w.save(batch)
	}
}

func (w *mirrorWriter) save(batch []domain.PriceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error().Str("panic", fmt.Sprint(rec)).Msg("Mirror write panicked")
		}
	}()

	if err := w.mirror.SaveCurrent(ctx, batch); err != nil {
		w.logger.Error().Err(err).Int("records", len(batch)).Msg("Durable mirror write failed")
		return
	}
	w.logger.Debug().Int("records", len(batch)).Msg("Durable mirror write complete")
}

// close stops accepting writes and waits for queued ones until ctx expires.
func (w *mirrorWriter) close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining mirror writes: %w", ctx.Err())
	}
}
