package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobInvalidID        = errors.New("queue: invalid job ID")
	ErrJobInvalidQueueName = errors.New("queue: invalid queue name")
	ErrJobNotFound         = errors.New("queue: job not found")
)

// Named queues. Order events outrank inventory-level events.
const (
	QueueOrderProcessing = "order-processing"
	QueueInventorySync   = "inventory-sync"

	PriorityOrder     = 10
	PriorityInventory = 1
)

// Default retry configuration
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = time.Second
)

// Status represents the lifecycle state of a sync job
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	// StatusFailed marks a permanent failure: the job will not be retried
	StatusFailed Status = "FAILED"
	// StatusDead marks a job that exhausted its retry budget and is held
	// for manual inspection, never silently dropped
	StatusDead Status = "DEAD"
)

// ---------------------------------------------------------------------------
// Job Entity
// ---------------------------------------------------------------------------

// Job is one queued unit of reconciliation work. The JobID is caller-supplied
// and derived from the webhook delivery ID, so enqueueing the same delivery
// twice is a no-op at the queue layer.
type Job struct {
	ID             uuid.UUID
	JobID          string
	QueueName      string
	Payload        []byte
	Priority       int
	Attempt        int
	MaxAttempts    int
	Status         Status
	Result         string
	LastError      string
	NextRetryAt    *time.Time
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// NewJob creates a new sync job in the waiting state
func NewJob(jobID, queueName string, payload []byte, priority, maxAttempts int) (*Job, error) {
	if jobID == "" {
		return nil, ErrJobInvalidID
	}
	if queueName != QueueOrderProcessing && queueName != QueueInventorySync {
		return nil, ErrJobInvalidQueueName
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	now := time.Now()
	return &Job{
		ID:          uuid.New(),
		JobID:       jobID,
		QueueName:   queueName,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkActive claims the job for processing with a lease. If the worker dies
// before finishing, the expired lease returns the job to claimable state.
func (j *Job) MarkActive(lease time.Duration) {
	now := time.Now()
	expires := now.Add(lease)
	j.Status = StatusActive
	j.LeaseExpiresAt = &expires
	j.UpdatedAt = now
}

// MarkCompleted marks the job as successfully processed
func (j *Job) MarkCompleted(result string) {
	now := time.Now()
	j.Status = StatusCompleted
	j.Result = result
	j.LastError = ""
	j.LeaseExpiresAt = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed records a retryable failure. The attempt counter increments and
// the job either returns to waiting with an exponentially backed-off retry
// time (base * 2^(attempt-1)) or moves to the dead set once the attempt
// ceiling is reached.
func (j *Job) MarkFailed(errMsg string, baseBackoff time.Duration) {
	if baseBackoff <= 0 {
		baseBackoff = DefaultBaseBackoff
	}

	now := time.Now()
	j.Attempt++
	j.LastError = errMsg
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now

	if j.Attempt >= j.MaxAttempts {
		j.Status = StatusDead
		j.NextRetryAt = nil
		return
	}

	backoff := baseBackoff * time.Duration(1<<uint(j.Attempt-1))
	next := now.Add(backoff)
	j.Status = StatusWaiting
	j.NextRetryAt = &next
}

// MarkPermanentlyFailed records a non-retryable failure (validation errors,
// 4xx responses). Retrying cannot succeed, so the job is final immediately.
func (j *Job) MarkPermanentlyFailed(errMsg string) {
	now := time.Now()
	j.Attempt++
	j.Status = StatusFailed
	j.LastError = errMsg
	j.NextRetryAt = nil
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now
}

// ResetForRetry returns a dead or permanently failed job to the waiting state
func (j *Job) ResetForRetry() error {
	if j.Status != StatusDead && j.Status != StatusFailed {
		return errors.New("queue: can only requeue dead or failed jobs")
	}
	j.Status = StatusWaiting
	j.Attempt = 0
	j.LastError = ""
	j.NextRetryAt = nil
	j.LeaseExpiresAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true if the job is in the dead set
func (j *Job) IsDead() bool {
	return j.Status == StatusDead
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// PermanentError wraps a processing failure that must not be retried
type PermanentError struct {
	Err error
}

// Permanent wraps err as a non-retryable job failure
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent returns true if err is marked as a non-retryable failure
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ---------------------------------------------------------------------------
// Store Interface
// ---------------------------------------------------------------------------

// Counts holds per-queue job totals for operational visibility
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dead      int64 `json:"dead"`
}

// Store defines the interface for durable job queue persistence. Claim must
// be atomic: of several concurrent workers, each claimed job is handed to
// exactly one of them.
type Store interface {
	// Enqueue persists a new job. Returns false without error if a job with
	// the same JobID already exists (deduplication by job ID).
	Enqueue(ctx context.Context, job *Job) (bool, error)

	// Claim atomically moves up to limit due jobs of the queue to the active
	// state under a lease, and returns them ordered by priority then age.
	// Jobs whose lease expired are reclaimed as well.
	Claim(ctx context.Context, queueName string, limit int, lease time.Duration) ([]*Job, error)

	// Update persists job state mutated by a worker
	Update(ctx context.Context, job *Job) error

	// FindByJobID retrieves a job by its caller-supplied ID
	FindByJobID(ctx context.Context, jobID string) (*Job, error)

	// FindDead retrieves dead-letter jobs with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*Job, int64, error)

	// Counts returns job totals per status for one queue
	Counts(ctx context.Context, queueName string) (Counts, error)

	// TrimCompleted deletes completed jobs beyond the most recent keep,
	// returning the number deleted. Failed and dead jobs are retained.
	TrimCompleted(ctx context.Context, queueName string, keep int) (int64, error)
}
