package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/webhook"
)

// WebhookDeliveryModel is the persistence model for the Delivery domain entity.
// The delivery_id column carries the platform-assigned identifier and is the
// lookup key; rows are append-only except for the outcome columns.
type WebhookDeliveryModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	DeliveryID        string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_webhook_delivery_id"`
	Source            string    `gorm:"type:varchar(20);not null;index:idx_webhook_source"`
	EventTopic        string    `gorm:"type:varchar(100);not null;index:idx_webhook_topic"`
	ShopDomain        string    `gorm:"type:varchar(255)"`
	RawPayload        []byte    `gorm:"type:bytea;not null"`
	ReceivedAt        time.Time `gorm:"not null;index:idx_webhook_received_at"`
	ProcessingOutcome string    `gorm:"type:varchar(20);index:idx_webhook_outcome"`
	ErrorDetail       string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// ToDomain converts the persistence model to a domain Delivery entity
func (m *WebhookDeliveryModel) ToDomain() *webhook.Delivery {
	return &webhook.Delivery{
		ID:                m.ID,
		DeliveryID:        m.DeliveryID,
		Source:            webhook.Source(m.Source),
		EventTopic:        m.EventTopic,
		ShopDomain:        m.ShopDomain,
		RawPayload:        m.RawPayload,
		ReceivedAt:        m.ReceivedAt,
		ProcessingOutcome: webhook.Outcome(m.ProcessingOutcome),
		ErrorDetail:       m.ErrorDetail,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Delivery entity
func (m *WebhookDeliveryModel) FromDomain(d *webhook.Delivery) {
	m.ID = d.ID
	m.DeliveryID = d.DeliveryID
	m.Source = string(d.Source)
	m.EventTopic = d.EventTopic
	m.ShopDomain = d.ShopDomain
	m.RawPayload = d.RawPayload
	m.ReceivedAt = d.ReceivedAt
	m.ProcessingOutcome = string(d.ProcessingOutcome)
	m.ErrorDetail = d.ErrorDetail
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt
}

// WebhookDeliveryModelFromDomain creates a new persistence model from a domain Delivery
func WebhookDeliveryModelFromDomain(d *webhook.Delivery) *WebhookDeliveryModel {
	m := &WebhookDeliveryModel{}
	m.FromDomain(d)
	return m
}
