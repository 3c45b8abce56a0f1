package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"go.uber.org/zap"
)

// fakeJobStore is a minimal in-memory queue.Store. The worker fans jobs out to
// a goroutine pool, so the fake must be safe for concurrent use; a testify mock
// is not.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]*queue.Job
	trimCalls int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*queue.Job)}
}

func (s *fakeJobStore) Enqueue(ctx context.Context, job *queue.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return false, nil
	}
	s.jobs[job.JobID] = job
	return true, nil
}

func (s *fakeJobStore) Claim(ctx context.Context, queueName string, limit int, lease time.Duration) ([]*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []*queue.Job
	now := time.Now()
	for _, j := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if j.QueueName != queueName || j.Status != queue.StatusWaiting {
			continue
		}
		if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
			continue
		}
		j.MarkActive(lease)
		claimed = append(claimed, j)
	}
	return claimed, nil
}

func (s *fakeJobStore) Update(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

func (s *fakeJobStore) FindByJobID(ctx context.Context, jobID string) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, exists := s.jobs[jobID]
	if !exists {
		return nil, queue.ErrJobNotFound
	}
	return j, nil
}

func (s *fakeJobStore) FindDead(ctx context.Context, page, pageSize int) ([]*queue.Job, int64, error) {
	return nil, 0, nil
}

func (s *fakeJobStore) Counts(ctx context.Context, queueName string) (queue.Counts, error) {
	return queue.Counts{}, nil
}

func (s *fakeJobStore) TrimCompleted(ctx context.Context, queueName string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimCalls++
	return 0, nil
}

// snapshot returns a copy of the stored job state for race-free assertions
func (s *fakeJobStore) snapshot(jobID string) queue.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

func (s *fakeJobStore) trimmed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimCalls
}

// stubProcessor returns a canned verdict per job ID
type stubProcessor struct {
	queueName string
	results   map[string]error
}

func (p *stubProcessor) Queue() string { return p.queueName }

func (p *stubProcessor) Process(ctx context.Context, job *queue.Job) (string, error) {
	if err, exists := p.results[job.JobID]; exists && err != nil {
		return "", err
	}
	return "applied", nil
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    10,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		Lease:        time.Minute,
		BaseBackoff:  time.Second,
	}
}

func enqueueTestJob(t *testing.T, store *fakeJobStore, jobID string, maxAttempts int) {
	t.Helper()
	job, err := queue.NewJob(jobID, queue.QueueOrderProcessing, []byte(`{}`), queue.PriorityOrder, maxAttempts)
	require.NoError(t, err)
	_, err = store.Enqueue(context.Background(), job)
	require.NoError(t, err)
}

func startTestWorker(t *testing.T, store *fakeJobStore, proc Processor, cfg WorkerConfig) {
	t.Helper()
	w := NewWorker(store, proc, cfg, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))
	})
}

// ---------------------------------------------------------------------------
// Worker Tests
// ---------------------------------------------------------------------------

func TestWorker_CompletesClaimedJobs(t *testing.T) {
	store := newFakeJobStore()
	enqueueTestJob(t, store, "j1", 3)
	enqueueTestJob(t, store, "j2", 3)

	proc := &stubProcessor{queueName: queue.QueueOrderProcessing}
	startTestWorker(t, store, proc, testWorkerConfig())

	require.Eventually(t, func() bool {
		return store.snapshot("j1").Status == queue.StatusCompleted &&
			store.snapshot("j2").Status == queue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	job := store.snapshot("j1")
	assert.Equal(t, "applied", job.Result)
	assert.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.LeaseExpiresAt)
}

func TestWorker_PermanentErrorFailsWithoutRetry(t *testing.T) {
	store := newFakeJobStore()
	enqueueTestJob(t, store, "j1", 3)

	proc := &stubProcessor{
		queueName: queue.QueueOrderProcessing,
		results:   map[string]error{"j1": queue.Permanent(errors.New("malformed payload"))},
	}
	startTestWorker(t, store, proc, testWorkerConfig())

	require.Eventually(t, func() bool {
		return store.snapshot("j1").Status == queue.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	job := store.snapshot("j1")
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, "malformed payload", job.LastError)
	assert.Nil(t, job.NextRetryAt)
}

func TestWorker_NonTransientPlatformErrorFailsWithoutRetry(t *testing.T) {
	store := newFakeJobStore()
	enqueueTestJob(t, store, "j1", 3)

	proc := &stubProcessor{
		queueName: queue.QueueOrderProcessing,
		results: map[string]error{"j1": &integration.PlatformError{
			Platform:   "storefront",
			Op:         "adjust_stock",
			StatusCode: 422,
			Err:        errors.New("variant not found"),
		}},
	}
	startTestWorker(t, store, proc, testWorkerConfig())

	require.Eventually(t, func() bool {
		return store.snapshot("j1").Status == queue.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.snapshot("j1").Attempt)
}

func TestWorker_TransientErrorRetriesWithBackoff(t *testing.T) {
	store := newFakeJobStore()
	enqueueTestJob(t, store, "j1", 3)

	proc := &stubProcessor{
		queueName: queue.QueueOrderProcessing,
		results: map[string]error{"j1": &integration.PlatformError{
			Platform:   "marketplace",
			Op:         "get_stock",
			StatusCode: 503,
			Transient:  true,
			Err:        errors.New("upstream unavailable"),
		}},
	}
	// Long backoff keeps the job parked in waiting for the assertion window
	cfg := testWorkerConfig()
	cfg.BaseBackoff = time.Hour
	startTestWorker(t, store, proc, cfg)

	require.Eventually(t, func() bool {
		return store.snapshot("j1").Attempt == 1
	}, 2*time.Second, 5*time.Millisecond)

	job := store.snapshot("j1")
	assert.Equal(t, queue.StatusWaiting, job.Status)
	require.NotNil(t, job.NextRetryAt)
	assert.True(t, job.NextRetryAt.After(time.Now()))
}

func TestWorker_ExhaustedRetriesMoveToDeadSet(t *testing.T) {
	store := newFakeJobStore()
	enqueueTestJob(t, store, "j1", 1)

	proc := &stubProcessor{
		queueName: queue.QueueOrderProcessing,
		results:   map[string]error{"j1": errors.New("timeout")},
	}
	startTestWorker(t, store, proc, testWorkerConfig())

	require.Eventually(t, func() bool {
		return store.snapshot("j1").Status == queue.StatusDead
	}, 2*time.Second, 5*time.Millisecond)

	job := store.snapshot("j1")
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, "timeout", job.LastError)
	assert.Nil(t, job.NextRetryAt)
}

func TestWorker_IgnoresOtherQueues(t *testing.T) {
	store := newFakeJobStore()
	job, err := queue.NewJob("inv-1", queue.QueueInventorySync, []byte(`{}`), queue.PriorityInventory, 3)
	require.NoError(t, err)
	_, err = store.Enqueue(context.Background(), job)
	require.NoError(t, err)

	proc := &stubProcessor{queueName: queue.QueueOrderProcessing}
	startTestWorker(t, store, proc, testWorkerConfig())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, queue.StatusWaiting, store.snapshot("inv-1").Status)
}

func TestWorker_TrimLoopRuns(t *testing.T) {
	store := newFakeJobStore()
	proc := &stubProcessor{queueName: queue.QueueOrderProcessing}

	cfg := testWorkerConfig()
	cfg.TrimEnabled = true
	cfg.TrimKeep = 100
	cfg.TrimInterval = 10 * time.Millisecond
	startTestWorker(t, store, proc, cfg)

	require.Eventually(t, func() bool {
		return store.trimmed() > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_StopIsIdempotentBeforeStart(t *testing.T) {
	w := NewWorker(newFakeJobStore(), &stubProcessor{queueName: queue.QueueOrderProcessing}, testWorkerConfig(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, w.Stop(ctx))
}
