package detector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"focusguard-backend/internal/metrics"
)

// Pool runs detector calls on a fixed number of workers behind a bounded queue.
type Pool struct {
	size     int
	jobs     chan Job
	detector Detector
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with size workers and a queue of queueSize jobs.
func NewPool(size, queueSize int, timeout time.Duration, det Detector, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		size:     size,
		jobs:     make(chan Job, queueSize),
		detector: det,
		timeout:  timeout,
		logger:   logger.With().Str("component", "detector_pool").Logger(),
	}
}

// Start launches the worker goroutines. They exit when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		case <-ctx.Done():
			p.logger.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

func (p *Pool) run(job Job) {
	res := Result{Frame: job.Frame}
	if err := job.Ctx.Err(); err != nil {
		res.Err = err
		job.Reply <- res
		return
	}

	ctx := job.Ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res.Detection, res.Err = p.detector.Detect(ctx, job.Frame)
	res.Latency = time.Since(start)

	metrics.DetectorLatency.Observe(res.Latency.Seconds())
	if res.Err != nil {
		metrics.DetectorErrors.Inc()
	}
	job.Reply <- res
}

// TrySubmit queues job without blocking. It returns ErrSaturated when the queue is full.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrSaturated
	}
}

// Stop closes the queue and waits for the workers to finish the queued jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
