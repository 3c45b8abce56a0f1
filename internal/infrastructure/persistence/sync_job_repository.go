package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSyncJobRepository implements queue.Store using GORM. Claim relies on
// FOR UPDATE SKIP LOCKED on Postgres so concurrent workers never hand the
// same job to two goroutines; on other dialects (SQLite in tests) the
// transaction's serialization provides the same guarantee.
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GORM-based job store
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Enqueue persists a new job. Deduplicates by the job_id unique index:
// a conflicting insert is dropped and reported as not inserted.
func (r *GormSyncJobRepository) Enqueue(ctx context.Context, job *queue.Job) (bool, error) {
	model := models.SyncJobModelFromDomain(job)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Claim atomically moves up to limit due jobs of the queue to the active
// state under a lease. A job is due when it is waiting with no retry time
// or a retry time in the past, or when its active lease expired.
func (r *GormSyncJobRepository) Claim(ctx context.Context, queueName string, limit int, lease time.Duration) ([]*queue.Job, error) {
	var claimed []*queue.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		query := tx.
			Where("queue_name = ?", queueName).
			Where(
				tx.Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", string(queue.StatusWaiting), now).
					Or("status = ? AND lease_expires_at <= ?", string(queue.StatusActive), now),
			).
			Order("priority DESC, created_at ASC").
			Limit(limit)

		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			})
		}

		var jobModels []models.SyncJobModel
		if err := query.Find(&jobModels).Error; err != nil {
			return err
		}
		if len(jobModels) == 0 {
			return nil
		}

		expires := now.Add(lease)
		ids := make([]string, len(jobModels))
		for i := range jobModels {
			ids[i] = jobModels[i].JobID
		}

		if err := tx.Model(&models.SyncJobModel{}).
			Where("job_id IN ?", ids).
			Updates(map[string]interface{}{
				"status":           string(queue.StatusActive),
				"lease_expires_at": expires,
				"updated_at":       now,
			}).Error; err != nil {
			return err
		}

		claimed = make([]*queue.Job, len(jobModels))
		for i := range jobModels {
			job := jobModels[i].ToDomain()
			job.Status = queue.StatusActive
			job.LeaseExpiresAt = &expires
			job.UpdatedAt = now
			claimed[i] = job
		}
		return nil
	})

	return claimed, err
}

// Update persists job state mutated by a worker
func (r *GormSyncJobRepository) Update(ctx context.Context, job *queue.Job) error {
	model := models.SyncJobModelFromDomain(job)
	// Save would skip NULLing cleared pointer columns, so write them explicitly.
	return r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("job_id = ?", job.JobID).
		Updates(map[string]interface{}{
			"status":           model.Status,
			"attempt":          model.Attempt,
			"result":           model.Result,
			"last_error":       model.LastError,
			"next_retry_at":    model.NextRetryAt,
			"lease_expires_at": model.LeaseExpiresAt,
			"completed_at":     model.CompletedAt,
			"updated_at":       model.UpdatedAt,
		}).Error
}

// FindByJobID retrieves a job by its caller-supplied ID
func (r *GormSyncJobRepository) FindByJobID(ctx context.Context, jobID string) (*queue.Job, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDead retrieves dead-letter jobs across all queues with pagination
func (r *GormSyncJobRepository) FindDead(ctx context.Context, page, pageSize int) ([]*queue.Job, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ?", string(queue.StatusDead)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobModels []models.SyncJobModel
	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(queue.StatusDead)).
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*queue.Job, len(jobModels))
	for i := range jobModels {
		jobs[i] = jobModels[i].ToDomain()
	}
	return jobs, total, nil
}

// Counts returns job totals per status for one queue
func (r *GormSyncJobRepository) Counts(ctx context.Context, queueName string) (queue.Counts, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var results []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Select("status, count(*) as count").
		Where("queue_name = ?", queueName).
		Group("status").
		Scan(&results).Error; err != nil {
		return queue.Counts{}, err
	}

	var counts queue.Counts
	for _, res := range results {
		switch queue.Status(res.Status) {
		case queue.StatusWaiting:
			counts.Waiting = res.Count
		case queue.StatusActive:
			counts.Active = res.Count
		case queue.StatusCompleted:
			counts.Completed = res.Count
		case queue.StatusFailed:
			counts.Failed = res.Count
		case queue.StatusDead:
			counts.Dead = res.Count
		}
	}
	return counts, nil
}

// TrimCompleted deletes completed jobs beyond the most recent keep
func (r *GormSyncJobRepository) TrimCompleted(ctx context.Context, queueName string, keep int) (int64, error) {
	var keepIDs []string
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("queue_name = ? AND status = ?", queueName, string(queue.StatusCompleted)).
		Order("completed_at DESC").
		Limit(keep).
		Pluck("job_id", &keepIDs).Error; err != nil {
		return 0, err
	}

	del := r.db.WithContext(ctx).
		Where("queue_name = ? AND status = ?", queueName, string(queue.StatusCompleted))
	if len(keepIDs) > 0 {
		del = del.Where("job_id NOT IN ?", keepIDs)
	}

	result := del.Delete(&models.SyncJobModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormSyncJobRepository implements queue.Store
var _ queue.Store = (*GormSyncJobRepository)(nil)
