package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/backend/internal/domain/webhook"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWebhookDeliveryRepository implements DeliveryRepository using GORM
type GormWebhookDeliveryRepository struct {
	db *gorm.DB
}

// NewGormWebhookDeliveryRepository creates a new GORM-based delivery repository
func NewGormWebhookDeliveryRepository(db *gorm.DB) *GormWebhookDeliveryRepository {
	return &GormWebhookDeliveryRepository{db: db}
}

// Save persists a new delivery record. A conflicting delivery_id is a no-op:
// intake may see a redelivery of something already on file, and the original
// audit row, outcome included, must survive it. Deliberate outcome changes go
// through UpdateOutcome.
func (r *GormWebhookDeliveryRepository) Save(ctx context.Context, delivery *webhook.Delivery) error {
	model := models.WebhookDeliveryModelFromDomain(delivery)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "delivery_id"}},
			DoNothing: true,
		}).
		Create(model).Error
}

// UpdateOutcome updates the processing outcome of an existing record
func (r *GormWebhookDeliveryRepository) UpdateOutcome(ctx context.Context, deliveryID string, outcome webhook.Outcome, errorDetail string) error {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookDeliveryModel{}).
		Where("delivery_id = ?", deliveryID).
		Updates(map[string]interface{}{
			"processing_outcome": string(outcome),
			"error_detail":       errorDetail,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return webhook.ErrDeliveryNotFound
	}
	return nil
}

// FindByDeliveryID retrieves a delivery by its platform-assigned ID
func (r *GormWebhookDeliveryRepository) FindByDeliveryID(ctx context.Context, deliveryID string) (*webhook.Delivery, error) {
	var model models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).First(&model, "delivery_id = ?", deliveryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrDeliveryNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Recent retrieves the most recently received deliveries
func (r *GormWebhookDeliveryRepository) Recent(ctx context.Context, limit int) ([]*webhook.Delivery, error) {
	var deliveryModels []models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Limit(limit).
		Find(&deliveryModels).Error; err != nil {
		return nil, err
	}

	deliveries := make([]*webhook.Delivery, len(deliveryModels))
	for i := range deliveryModels {
		deliveries[i] = deliveryModels[i].ToDomain()
	}
	return deliveries, nil
}

// CountByOutcome returns the number of deliveries per outcome
func (r *GormWebhookDeliveryRepository) CountByOutcome(ctx context.Context) (map[webhook.Outcome]int64, error) {
	type outcomeCount struct {
		ProcessingOutcome string
		Count             int64
	}

	var results []outcomeCount
	if err := r.db.WithContext(ctx).
		Model(&models.WebhookDeliveryModel{}).
		Select("processing_outcome, count(*) as count").
		Group("processing_outcome").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[webhook.Outcome]int64)
	for _, res := range results {
		counts[webhook.Outcome(res.ProcessingOutcome)] = res.Count
	}
	return counts, nil
}

// Ensure GormWebhookDeliveryRepository implements DeliveryRepository
var _ webhook.DeliveryRepository = (*GormWebhookDeliveryRepository)(nil)
