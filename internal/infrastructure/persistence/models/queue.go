package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/queue"
)

// SyncJobModel is the persistence model for the Job domain entity. The
// job_id column carries the caller-supplied identifier whose unique index
// provides enqueue deduplication.
type SyncJobModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	JobID          string     `gorm:"type:varchar(160);not null;uniqueIndex:idx_sync_job_id"`
	QueueName      string     `gorm:"type:varchar(50);not null;index:idx_sync_job_claim,priority:1"`
	Payload        []byte     `gorm:"type:jsonb;not null"`
	Priority       int        `gorm:"not null;default:0"`
	Attempt        int        `gorm:"not null;default:0"`
	MaxAttempts    int        `gorm:"not null;default:3"`
	Status         string     `gorm:"type:varchar(20);not null;index:idx_sync_job_claim,priority:2"`
	Result         string     `gorm:"type:varchar(50)"`
	LastError      string     `gorm:"type:text"`
	NextRetryAt    *time.Time `gorm:"index:idx_sync_job_next_retry"`
	LeaseExpiresAt *time.Time `gorm:"index:idx_sync_job_lease"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_sync_job_claim,priority:3"`
	UpdatedAt      time.Time  `gorm:"not null"`
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job entity
func (m *SyncJobModel) ToDomain() *queue.Job {
	return &queue.Job{
		ID:             m.ID,
		JobID:          m.JobID,
		QueueName:      m.QueueName,
		Payload:        m.Payload,
		Priority:       m.Priority,
		Attempt:        m.Attempt,
		MaxAttempts:    m.MaxAttempts,
		Status:         queue.Status(m.Status),
		Result:         m.Result,
		LastError:      m.LastError,
		NextRetryAt:    m.NextRetryAt,
		LeaseExpiresAt: m.LeaseExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		CompletedAt:    m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Job entity
func (m *SyncJobModel) FromDomain(j *queue.Job) {
	m.ID = j.ID
	m.JobID = j.JobID
	m.QueueName = j.QueueName
	m.Payload = j.Payload
	m.Priority = j.Priority
	m.Attempt = j.Attempt
	m.MaxAttempts = j.MaxAttempts
	m.Status = string(j.Status)
	m.Result = j.Result
	m.LastError = j.LastError
	m.NextRetryAt = j.NextRetryAt
	m.LeaseExpiresAt = j.LeaseExpiresAt
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
	m.CompletedAt = j.CompletedAt
}

// SyncJobModelFromDomain creates a new persistence model from a domain Job
func SyncJobModelFromDomain(j *queue.Job) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}
