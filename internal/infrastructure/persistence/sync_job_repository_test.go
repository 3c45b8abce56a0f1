package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a file-backed SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.WebhookDeliveryModel{},
		&models.SyncJobModel{},
		&models.ProductMappingModel{},
	))
	return db
}

func newTestJob(t *testing.T, jobID string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(jobID, queue.QueueOrderProcessing, []byte(`{"op":"stock_decrement"}`), queue.PriorityOrder, 3)
	require.NoError(t, err)
	return job
}

// ---------------------------------------------------------------------------
// Enqueue Tests
// ---------------------------------------------------------------------------

func TestSyncJobRepository_EnqueueDeduplicates(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	inserted, err := repo.Enqueue(ctx, newTestJob(t, "wh-1:line-0"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same job ID again: silently dropped
	inserted, err = repo.Enqueue(ctx, newTestJob(t, "wh-1:line-0"))
	require.NoError(t, err)
	assert.False(t, inserted)

	counts, err := repo.Counts(ctx, queue.QueueOrderProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Waiting)
}

// ---------------------------------------------------------------------------
// Claim Tests
// ---------------------------------------------------------------------------

func TestSyncJobRepository_ClaimOrdersByPriorityThenAge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSyncJobRepository(db)
	ctx := context.Background()

	low, err := queue.NewJob("low", queue.QueueInventorySync, []byte(`{}`), queue.PriorityInventory, 3)
	require.NoError(t, err)
	lowOld, err := queue.NewJob("low-old", queue.QueueInventorySync, []byte(`{}`), queue.PriorityInventory, 3)
	require.NoError(t, err)
	lowOld.CreatedAt = lowOld.CreatedAt.Add(-time.Minute)
	high, err := queue.NewJob("high", queue.QueueInventorySync, []byte(`{}`), queue.PriorityOrder, 3)
	require.NoError(t, err)

	for _, j := range []*queue.Job{low, lowOld, high} {
		_, err := repo.Enqueue(ctx, j)
		require.NoError(t, err)
	}

	claimed, err := repo.Claim(ctx, queue.QueueInventorySync, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, "high", claimed[0].JobID)
	assert.Equal(t, "low-old", claimed[1].JobID)
	assert.Equal(t, "low", claimed[2].JobID)
	for _, j := range claimed {
		assert.Equal(t, queue.StatusActive, j.Status)
		assert.NotNil(t, j.LeaseExpiresAt)
	}

	// Already active with a live lease: nothing left to claim
	claimed, err = repo.Claim(ctx, queue.QueueInventorySync, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSyncJobRepository_ClaimSkipsFutureRetries(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	job := newTestJob(t, "retry-later")
	future := time.Now().Add(time.Hour)
	job.NextRetryAt = &future
	_, err := repo.Enqueue(ctx, job)
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, queue.QueueOrderProcessing, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSyncJobRepository_ClaimReclaimsExpiredLease(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	job := newTestJob(t, "abandoned")
	_, err := repo.Enqueue(ctx, job)
	require.NoError(t, err)

	// First worker claims and then dies without updating the job
	claimed, err := repo.Claim(ctx, queue.QueueOrderProcessing, 10, -time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// The expired lease makes the job claimable again
	claimed, err = repo.Claim(ctx, queue.QueueOrderProcessing, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "abandoned", claimed[0].JobID)
}

// ---------------------------------------------------------------------------
// Update and lookup Tests
// ---------------------------------------------------------------------------

func TestSyncJobRepository_UpdatePersistsClearedColumns(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	job := newTestJob(t, "j1")
	_, err := repo.Enqueue(ctx, job)
	require.NoError(t, err)

	job.MarkFailed("timeout", time.Second)
	require.NoError(t, repo.Update(ctx, job))

	stored, err := repo.FindByJobID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
	assert.NotNil(t, stored.NextRetryAt)

	// Completion must NULL out the retry column, not leave it behind
	job.MarkCompleted("applied")
	require.NoError(t, repo.Update(ctx, job))

	stored, err = repo.FindByJobID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, stored.Status)
	assert.Equal(t, "applied", stored.Result)
	assert.Nil(t, stored.NextRetryAt)
	assert.Nil(t, stored.LeaseExpiresAt)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSyncJobRepository_FindByJobID_NotFound(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))

	_, err := repo.FindByJobID(context.Background(), "missing")

	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}

// ---------------------------------------------------------------------------
// Dead letter and trim Tests
// ---------------------------------------------------------------------------

func TestSyncJobRepository_FindDead(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		job, err := queue.NewJob(id, queue.QueueOrderProcessing, []byte(`{}`), 0, 1)
		require.NoError(t, err)
		_, err = repo.Enqueue(ctx, job)
		require.NoError(t, err)
		job.MarkFailed("boom", time.Second)
		require.NoError(t, repo.Update(ctx, job))
	}
	// One live job should not show up
	_, err := repo.Enqueue(ctx, newTestJob(t, "alive"))
	require.NoError(t, err)

	jobs, total, err := repo.FindDead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, jobs, 2)

	jobs, _, err = repo.FindDead(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSyncJobRepository_TrimCompletedKeepsRecent(t *testing.T) {
	repo := NewGormSyncJobRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		job := newTestJob(t, id)
		_, err := repo.Enqueue(ctx, job)
		require.NoError(t, err)
		job.MarkCompleted("applied")
		completedAt := base.Add(time.Duration(i) * time.Minute)
		job.CompletedAt = &completedAt
		require.NoError(t, repo.Update(ctx, job))
	}
	// A dead job must survive any trim
	dead, err := queue.NewJob("dead", queue.QueueOrderProcessing, []byte(`{}`), 0, 1)
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, dead)
	require.NoError(t, err)
	dead.MarkFailed("boom", time.Second)
	require.NoError(t, repo.Update(ctx, dead))

	deleted, err := repo.TrimCompleted(ctx, queue.QueueOrderProcessing, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// The two most recently completed jobs remain
	_, err = repo.FindByJobID(ctx, "c4")
	assert.NoError(t, err)
	_, err = repo.FindByJobID(ctx, "c3")
	assert.NoError(t, err)
	_, err = repo.FindByJobID(ctx, "c1")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	counts, err := repo.Counts(ctx, queue.QueueOrderProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Dead)
	assert.Equal(t, int64(2), counts.Completed)
}
