package webhook

import (
	"context"

	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// StatusReport is the operational snapshot served by the status endpoint
type StatusReport struct {
	Queues     map[string]queue.Counts   `json:"queues"`
	Deliveries map[webhook.Outcome]int64 `json:"deliveries"`
	Recent     []DeliverySummary         `json:"recent"`
}

// DeliverySummary is one delivery in the status report, without the payload
type DeliverySummary struct {
	DeliveryID string          `json:"delivery_id"`
	Source     webhook.Source  `json:"source"`
	Topic      string          `json:"topic"`
	ShopDomain string          `json:"shop_domain,omitempty"`
	Outcome    webhook.Outcome `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
	ReceivedAt string          `json:"received_at"`
}

// StatusService aggregates queue and delivery state for operators
type StatusService struct {
	deliveries webhook.DeliveryRepository
	jobs       queue.Store
	logger     *zap.Logger
}

// NewStatusService creates a new status service
func NewStatusService(deliveries webhook.DeliveryRepository, jobs queue.Store, logger *zap.Logger) *StatusService {
	return &StatusService{
		deliveries: deliveries,
		jobs:       jobs,
		logger:     logger,
	}
}

// Report builds the status snapshot. recentLimit caps the delivery list.
func (s *StatusService) Report(ctx context.Context, recentLimit int) (*StatusReport, error) {
	if recentLimit <= 0 {
		recentLimit = 20
	}

	report := &StatusReport{
		Queues: make(map[string]queue.Counts, 2),
	}
	for _, name := range []string{queue.QueueOrderProcessing, queue.QueueInventorySync} {
		counts, err := s.jobs.Counts(ctx, name)
		if err != nil {
			return nil, err
		}
		report.Queues[name] = counts
	}

	byOutcome, err := s.deliveries.CountByOutcome(ctx)
	if err != nil {
		return nil, err
	}
	report.Deliveries = byOutcome

	recent, err := s.deliveries.Recent(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	report.Recent = make([]DeliverySummary, 0, len(recent))
	for _, rec := range recent {
		report.Recent = append(report.Recent, DeliverySummary{
			DeliveryID: rec.DeliveryID,
			Source:     rec.Source,
			Topic:      rec.EventTopic,
			ShopDomain: rec.ShopDomain,
			Outcome:    rec.ProcessingOutcome,
			Error:      rec.ErrorDetail,
			ReceivedAt: rec.ReceivedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return report, nil
}

// DeadJobs lists dead-letter jobs with pagination
func (s *StatusService) DeadJobs(ctx context.Context, page, pageSize int) ([]*queue.Job, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.jobs.FindDead(ctx, page, pageSize)
}

// RequeueDead returns a dead or permanently failed job to the waiting state
func (s *StatusService) RequeueDead(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.jobs.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("dead job requeued", zap.String("job_id", jobID), zap.String("queue", job.QueueName))
	return job, nil
}
