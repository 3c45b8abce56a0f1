package webhook

import (
	"context"

	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// RetryService re-drives a stored delivery through intake. This is the manual
// recovery path for deliveries whose jobs were lost or exhausted: the raw
// payload on the audit row is the source of truth.
type RetryService struct {
	deliveries webhook.DeliveryRepository
	guard      webhook.IdempotencyGuard
	intake     *IntakeService
	logger     *zap.Logger
}

// NewRetryService creates a new webhook retry service
func NewRetryService(
	deliveries webhook.DeliveryRepository,
	guard webhook.IdempotencyGuard,
	intake *IntakeService,
	logger *zap.Logger,
) *RetryService {
	return &RetryService{
		deliveries: deliveries,
		guard:      guard,
		intake:     intake,
		logger:     logger,
	}
}

// Retry clears the idempotency mark for a stored delivery and reprocesses it
// from the persisted payload
func (s *RetryService) Retry(ctx context.Context, deliveryID string) (Result, error) {
	rec, err := s.deliveries.FindByDeliveryID(ctx, deliveryID)
	if err != nil {
		return Result{}, err
	}

	if err := s.guard.Clear(ctx, deliveryID); err != nil {
		// The mark may linger; job-level dedup still prevents double work.
		s.logger.Warn("failed to clear idempotency mark before retry",
			zap.String("delivery_id", deliveryID), zap.Error(err))
	}

	s.logger.Info("retrying webhook delivery",
		zap.String("delivery_id", deliveryID),
		zap.String("topic", rec.EventTopic),
	)
	return s.intake.Reprocess(ctx, rec)
}
