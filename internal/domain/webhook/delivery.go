package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeliveryInvalidID     = errors.New("webhook: invalid delivery ID")
	ErrDeliveryInvalidSource = errors.New("webhook: invalid delivery source")
	ErrDeliveryInvalidTopic  = errors.New("webhook: invalid event topic")
	ErrDeliveryNotFound      = errors.New("webhook: delivery not found")
)

// ---------------------------------------------------------------------------
// Source and Outcome enums
// ---------------------------------------------------------------------------

// Source identifies which external platform sent a webhook delivery.
type Source string

const (
	// SourceMarketplace is the marketplace side of the integration
	SourceMarketplace Source = "marketplace"
	// SourceStorefront is the storefront side of the integration
	SourceStorefront Source = "storefront"
)

// IsValid returns true if the source is valid
func (s Source) IsValid() bool {
	return s == SourceMarketplace || s == SourceStorefront
}

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// Outcome records how a webhook delivery was processed.
type Outcome string

const (
	// OutcomeSuccess indicates the delivery was accepted and jobs were queued
	OutcomeSuccess Outcome = "success"
	// OutcomeError indicates an internal fault while handling the delivery
	OutcomeError Outcome = "error"
	// OutcomeDuplicate indicates the delivery was recognized as a duplicate
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoMapping indicates no active product mapping matched the payload
	OutcomeNoMapping Outcome = "no_mapping"
)

// Well-known event topics pushed by the platforms.
const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersUpdated   = "orders/updated"
	TopicOrdersCancelled = "orders/cancelled"
	TopicProductsUpdate  = "products/update"
	TopicInventoryUpdate = "inventory_levels/update"
)

// ---------------------------------------------------------------------------
// Delivery Entity
// ---------------------------------------------------------------------------

// Delivery is the audit record for one inbound webhook push. A record is
// created on receipt and is immutable afterwards except for the processing
// outcome. Records are never deleted; they are the recovery path when a
// queued job is lost before completion.
//
// The platform assigns a fresh delivery ID to every attempt, including
// redeliveries after failure, so DeliveryID is unique per attempt and the
// idempotency key must come from the header, never from a content hash.
type Delivery struct {
	ID                uuid.UUID
	DeliveryID        string
	Source            Source
	EventTopic        string
	ShopDomain        string
	RawPayload        []byte
	ReceivedAt        time.Time
	ProcessingOutcome Outcome
	ErrorDetail       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDelivery creates a new webhook delivery audit record
func NewDelivery(deliveryID string, source Source, eventTopic, shopDomain string, rawPayload []byte, receivedAt time.Time) (*Delivery, error) {
	if deliveryID == "" {
		return nil, ErrDeliveryInvalidID
	}
	if !source.IsValid() {
		return nil, ErrDeliveryInvalidSource
	}
	if eventTopic == "" {
		return nil, ErrDeliveryInvalidTopic
	}

	now := time.Now()
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return &Delivery{
		ID:         uuid.New(),
		DeliveryID: deliveryID,
		Source:     source,
		EventTopic: eventTopic,
		ShopDomain: shopDomain,
		RawPayload: rawPayload,
		ReceivedAt: receivedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarkOutcome records the processing outcome for this delivery
func (d *Delivery) MarkOutcome(outcome Outcome, errorDetail string) {
	d.ProcessingOutcome = outcome
	d.ErrorDetail = errorDetail
	d.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// DeliveryRepository Interface
// ---------------------------------------------------------------------------

// DeliveryRepository defines the interface for webhook delivery persistence
type DeliveryRepository interface {
	// Save persists a new delivery record
	Save(ctx context.Context, delivery *Delivery) error

	// UpdateOutcome updates the processing outcome of an existing record
	UpdateOutcome(ctx context.Context, deliveryID string, outcome Outcome, errorDetail string) error

	// FindByDeliveryID retrieves a delivery by its platform-assigned ID
	FindByDeliveryID(ctx context.Context, deliveryID string) (*Delivery, error)

	// Recent retrieves the most recently received deliveries
	Recent(ctx context.Context, limit int) ([]*Delivery, error)

	// CountByOutcome returns the number of deliveries per outcome
	CountByOutcome(ctx context.Context) (map[Outcome]int64, error)
}
