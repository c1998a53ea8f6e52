// Package worker delivers completed assessment runs to the event sink off the
// request path. The pipeline holds a pipeline.RunSink and calls Enqueue; it
// never imports the concrete Runner.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nyashahama/climate-risk-backend/internal/observability"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated. The event
// is dropped.
var ErrQueueFull = errors.New("worker: queue is full, run event dropped")

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// Workers is the number of concurrent publish goroutines. Default: 2.
	Workers int

	// QueueSize is the channel buffer. Default: 64.
	QueueSize int

	// JobTimeout is the per-attempt context deadline. Default: 10s.
	JobTimeout time.Duration

	// MaxRetries is the number of attempts before an event is abandoned.
	// Default: 3.
	MaxRetries int

	// BaseBackoff is the wait after the first failed attempt; it doubles on
	// each further failure. Default: 2s.
	BaseBackoff time.Duration
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:     2,
		QueueSize:   64,
		JobTimeout:  10 * time.Second,
		MaxRetries:  3,
		BaseBackoff: 2 * time.Second,
	}
}

// Runner manages a pool of goroutines that drain an in-process queue of
// completed runs.
type Runner struct {
	job     *Job
	cfg     RunnerConfig
	metrics *observability.Metrics
	clock   clockwork.Clock
	logger  *slog.Logger

	queue chan pipeline.RunEvent
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start to begin processing.
func NewRunner(
	job *Job,
	cfg RunnerConfig,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Runner{
		job:     job,
		cfg:     cfg,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
		queue:   make(chan pipeline.RunEvent, cfg.QueueSize),
	}
}

// Enqueue pushes ev onto the queue. It satisfies pipeline.RunSink and never
// blocks: a full queue drops the event and returns ErrQueueFull.
func (r *Runner) Enqueue(_ context.Context, ev pipeline.RunEvent) error {
	select {
	case r.queue <- ev:
		r.logger.Debug("worker: enqueued run", "run_id", ev.RunID)
		return nil
	default:
		r.metrics.EventsDropped.Inc()
		return ErrQueueFull
	}
}

// Start launches the worker pool. It blocks until ctx is cancelled and every
// goroutine has returned. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "workers", r.cfg.Workers, "queue_size", r.cfg.QueueSize)

	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

// work is the inner loop for each worker goroutine.
func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With("worker_id", id)
	log.Debug("worker: goroutine started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker: goroutine stopping")
			return
		case ev := <-r.queue:
			r.runWithRetry(ctx, ev, log)
		}
	}
}

// runWithRetry executes the job up to MaxRetries times with exponential
// back-off between attempts.
func (r *Runner) runWithRetry(ctx context.Context, ev pipeline.RunEvent, log *slog.Logger) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
		lastErr = r.job.Run(jobCtx, ev)
		cancel()

		if lastErr == nil {
			r.metrics.EventsPublished.Inc()
			log.Info("worker: run event published", "run_id", ev.RunID, "attempt", attempt)
			return
		}

		log.Warn("worker: publish attempt failed",
			"run_id", ev.RunID,
			"attempt", attempt,
			"max", r.cfg.MaxRetries,
			"error", lastErr,
		)

		if attempt < r.cfg.MaxRetries {
			// 2s, 4s, 8s … with the default base.
			backoff := r.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				r.metrics.EventsFailed.Inc()
				return
			case <-r.clock.After(backoff):
			}
		}
	}

	r.metrics.EventsFailed.Inc()
	log.Error("worker: run event abandoned", "run_id", ev.RunID, "error", lastErr)
}
