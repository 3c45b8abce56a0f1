package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"go.uber.org/zap"
)

// Processor handles jobs of one named queue
type Processor interface {
	// Queue returns the queue this processor consumes
	Queue() string

	// Process handles one claimed job. The returned string is recorded as
	// the job result on success. Errors wrapped by queue.Permanent or
	// carrying a non-transient platform classification fail the job without
	// retry; everything else retries with backoff.
	Process(ctx context.Context, job *queue.Job) (string, error)
}

// WorkerConfig holds configuration for a queue worker
type WorkerConfig struct {
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	BaseBackoff  time.Duration
	TrimEnabled  bool
	TrimKeep     int
	TrimInterval time.Duration
}

// DefaultWorkerConfig returns default worker configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    20,
		Concurrency:  4,
		PollInterval: 2 * time.Second,
		Lease:        2 * time.Minute,
		BaseBackoff:  queue.DefaultBaseBackoff,
		TrimEnabled:  true,
		TrimKeep:     1000,
		TrimInterval: time.Hour,
	}
}

// Worker polls one queue and runs its processor over claimed jobs in the
// background. Claimed jobs are processed by a bounded goroutine pool; the
// lease on each claim means a crashed worker's jobs become claimable again
// instead of being lost.
type Worker struct {
	store     queue.Store
	processor Processor
	config    WorkerConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a new queue worker
func NewWorker(store queue.Store, processor Processor, config WorkerConfig, logger *zap.Logger) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultWorkerConfig().Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if config.Lease <= 0 {
		config.Lease = DefaultWorkerConfig().Lease
	}
	return &Worker{
		store:     store,
		processor: processor,
		config:    config,
		logger:    logger,
	}
}

// Start starts the background polling
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.pollLoop(ctx)

	if w.config.TrimEnabled {
		w.wg.Add(1)
		go w.trimLoop(ctx)
	}

	w.logger.Info("queue worker started",
		zap.String("queue", w.processor.Queue()),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("concurrency", w.config.Concurrency),
		zap.Duration("poll_interval", w.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("queue worker stopped", zap.String("queue", w.processor.Queue()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollLoop is the main claim-and-process loop
func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch claims one batch and fans it out to the goroutine pool
func (w *Worker) processBatch(ctx context.Context) {
	jobs, err := w.store.Claim(ctx, w.processor.Queue(), w.config.BatchSize, w.config.Lease)
	if err != nil {
		w.logger.Error("failed to claim jobs",
			zap.String("queue", w.processor.Queue()), zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(w.config.Concurrency)
	for _, job := range jobs {
		job := job
		p.Go(func() {
			w.processJob(ctx, job)
		})
	}
	p.Wait()
}

// processJob runs one job through the processor and persists the verdict
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	result, err := w.processor.Process(ctx, job)
	switch {
	case err == nil:
		job.MarkCompleted(result)

	case queue.IsPermanent(err) || isPermanentPlatformError(err):
		job.MarkPermanentlyFailed(err.Error())
		w.logger.Error("job failed permanently",
			zap.String("queue", job.QueueName),
			zap.String("job_id", job.JobID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)

	default:
		job.MarkFailed(err.Error(), w.config.BaseBackoff)
		if job.IsDead() {
			w.logger.Error("job moved to dead set",
				zap.String("queue", job.QueueName),
				zap.String("job_id", job.JobID),
				zap.Int("attempt", job.Attempt),
				zap.String("last_error", job.LastError),
			)
		} else {
			w.logger.Warn("job failed, will retry",
				zap.String("queue", job.QueueName),
				zap.String("job_id", job.JobID),
				zap.Int("attempt", job.Attempt),
				zap.Timep("next_retry_at", job.NextRetryAt),
				zap.Error(err),
			)
		}
	}

	if updateErr := w.store.Update(ctx, job); updateErr != nil {
		// The lease expires and the job is reclaimed; dedup at the business
		// level absorbs the repeat.
		w.logger.Error("failed to persist job state",
			zap.String("job_id", job.JobID), zap.Error(updateErr))
	}
}

// isPermanentPlatformError reports a platform error classified non-transient
func isPermanentPlatformError(err error) bool {
	var pe *integration.PlatformError
	if !errors.As(err, &pe) {
		return false
	}
	return !pe.Transient
}

// trimLoop periodically deletes old completed jobs
func (w *Worker) trimLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.TrimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.trim(ctx)
		}
	}
}

func (w *Worker) trim(ctx context.Context) {
	deleted, err := w.store.TrimCompleted(ctx, w.processor.Queue(), w.config.TrimKeep)
	if err != nil {
		w.logger.Error("failed to trim completed jobs",
			zap.String("queue", w.processor.Queue()), zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("trimmed completed jobs",
			zap.String("queue", w.processor.Queue()),
			zap.Int64("deleted", deleted),
		)
	}
}
