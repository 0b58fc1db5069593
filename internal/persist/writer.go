// Package persist writes closed distraction windows to storage off the monitor goroutines.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"focusguard-backend/config"
	"focusguard-backend/internal/metrics"
	"focusguard-backend/internal/model"
	"focusguard-backend/internal/store"
)

// EventCreator is the part of the store the writer needs.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev *model.DistractionEvent) error
}

// Writer is a bounded queue of events drained by a fixed set of workers. Failed writes are retried
// with exponential backoff.
type Writer struct {
	store       EventCreator
	cfg         config.PersistConfig
	logger      zerolog.Logger
	queue       chan *model.DistractionEvent
	onPersisted func(*model.DistractionEvent)

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a writer. Call Start before enqueueing.
func NewWriter(s EventCreator, cfg config.PersistConfig, logger zerolog.Logger) *Writer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		store:  s,
		cfg:    cfg,
		logger: logger.With().Str("component", "persist").Logger(),
		queue:  make(chan *model.DistractionEvent, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnPersisted registers a callback run after each successful write. Set it before Start.
func (w *Writer) OnPersisted(fn func(*model.DistractionEvent)) {
	w.onPersisted = fn
}

// Start launches the workers.
func (w *Writer) Start() {
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
}

// Enqueue hands an event to the workers without blocking. It returns false when the queue is full
// or the writer is closed; the event is then lost and counted.
func (w *Writer) Enqueue(ev *model.DistractionEvent) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		metrics.EventsFailed.WithLabelValues("closed").Inc()
		w.logger.Error().Str("session_id", ev.SessionID).Str("event_id", ev.ID).Msg("writer closed, dropping event")
		return false
	}
	select {
	case w.queue <- ev:
		metrics.PersistQueueDepth.Inc()
		return true
	default:
		metrics.EventsFailed.WithLabelValues("queue_full").Inc()
		w.logger.Error().Str("session_id", ev.SessionID).Str("event_id", ev.ID).Msg("persist queue full, dropping event")
		return false
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for ev := range w.queue {
		metrics.PersistQueueDepth.Dec()
		w.write(ev)
	}
}

func (w *Writer) write(ev *model.DistractionEvent) {
	attempts := 0
	op := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.WriteTimeout)
		defer cancel()
		err := w.store.CreateEvent(ctx, ev)
		if errors.Is(err, store.ErrInvalidEvent) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.MaxRetries)), w.ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		w.logger.Warn().Err(err).Str("event_id", ev.ID).Dur("retry_in", wait).Msg("event write failed, retrying")
	})
	if err != nil {
		reason := "write"
		if errors.Is(err, store.ErrInvalidEvent) {
			reason = "invalid"
		}
		metrics.EventsFailed.WithLabelValues(reason).Inc()
		w.logger.Error().Err(err).
			Str("session_id", ev.SessionID).
			Str("event_id", ev.ID).
			Int("attempts", attempts).
			Msg("failed to persist event")
		return
	}

	metrics.EventsPersisted.Inc()
	if w.onPersisted != nil {
		w.onPersisted(ev)
	}
}

// Close stops accepting events and waits for the queue to drain. If ctx ends first, in-flight retries
// are abandoned.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return fmt.Errorf("persist queue not drained in time: %w", ctx.Err())
	}
}
