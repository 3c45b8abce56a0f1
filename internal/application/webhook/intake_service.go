package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/application/mapping"
	"github.com/syncbridge/backend/internal/application/reconcile"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Inbound delivery and intake result
// ---------------------------------------------------------------------------

// Inbound carries one verified webhook push into the intake service. The
// signature has already been checked by the transport layer; intake never
// sees unauthenticated payloads.
type Inbound struct {
	DeliveryID string
	Source     webhook.Source
	Topic      string
	ShopDomain string
	Body       []byte
	ReceivedAt time.Time
}

// Result reports what intake did with a delivery
type Result struct {
	Outcome    webhook.Outcome
	Duplicate  bool
	JobsQueued int
}

// ---------------------------------------------------------------------------
// Webhook payload shapes
// ---------------------------------------------------------------------------

// orderEvent is the order-shaped webhook body sent by both platforms
type orderEvent struct {
	ID          json.Number     `json:"id"`
	CancelledAt *time.Time      `json:"cancelled_at"`
	LineItems   []orderLineItem `json:"line_items"`
}

type orderLineItem struct {
	SKU       string          `json:"sku"`
	VariantID json.Number     `json:"variant_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// inventoryLevelEvent is the storefront inventory_levels/update body
type inventoryLevelEvent struct {
	InventoryItemID json.Number     `json:"inventory_item_id"`
	Available       decimal.Decimal `json:"available"`
}

// productEvent is the storefront products/update body
type productEvent struct {
	ID       json.Number      `json:"id"`
	Variants []productVariant `json:"variants"`
}

type productVariant struct {
	ID                json.Number     `json:"id"`
	SKU               string          `json:"sku"`
	InventoryQuantity decimal.Decimal `json:"inventory_quantity"`
}

// ---------------------------------------------------------------------------
// IntakeService
// ---------------------------------------------------------------------------

// IntakeService is the fast path between a verified webhook and the durable
// queue. It deduplicates by delivery ID, writes the audit record, and fans
// the event out into sync jobs. It never calls an external platform: all
// slow work happens in the queue workers.
type IntakeService struct {
	deliveries  webhook.DeliveryRepository
	guard       webhook.IdempotencyGuard
	jobs        queue.Store
	resolver    *mapping.Resolver
	maxAttempts int
	logger      *zap.Logger
}

// NewIntakeService creates a new webhook intake service. maxAttempts is the
// retry budget stamped on every job this service enqueues; values below one
// fall back to the queue default.
func NewIntakeService(
	deliveries webhook.DeliveryRepository,
	guard webhook.IdempotencyGuard,
	jobs queue.Store,
	resolver *mapping.Resolver,
	maxAttempts int,
	logger *zap.Logger,
) *IntakeService {
	if maxAttempts < 1 {
		maxAttempts = queue.DefaultMaxAttempts
	}
	return &IntakeService{
		deliveries:  deliveries,
		guard:       guard,
		jobs:        jobs,
		resolver:    resolver,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Handle processes one verified inbound delivery. It returns an error only
// for invalid input; internal faults are absorbed, logged, and recorded on
// the audit row so the platform is still answered with success and does not
// redeliver a payload we have safely stored.
func (s *IntakeService) Handle(ctx context.Context, in Inbound) (Result, error) {
	rec, err := webhook.NewDelivery(in.DeliveryID, in.Source, in.Topic, in.ShopDomain, in.Body, in.ReceivedAt)
	if err != nil {
		return Result{}, err
	}

	guardRes, err := s.guard.CheckAndMark(ctx, in.DeliveryID)
	if err != nil {
		// Fail open: a duplicate run is recoverable, a dropped webhook is not.
		s.logger.Warn("idempotency guard unavailable, proceeding without dedup",
			zap.String("delivery_id", in.DeliveryID), zap.Error(err))
		guardRes = webhook.GuardResult{Proceed: true}
	}

	if !guardRes.Proceed {
		rec.MarkOutcome(webhook.OutcomeDuplicate, "")
		s.saveRecord(ctx, rec)
		s.logger.Info("duplicate webhook delivery skipped",
			zap.String("delivery_id", in.DeliveryID),
			zap.String("topic", in.Topic),
			zap.Bool("already_done", guardRes.AlreadyDone),
		)
		return Result{Outcome: webhook.OutcomeDuplicate, Duplicate: true}, nil
	}

	outcome, queued := s.dispatch(ctx, rec)
	rec.MarkOutcome(outcome, rec.ErrorDetail)
	s.saveRecord(ctx, rec)

	s.logger.Info("webhook delivery accepted",
		zap.String("delivery_id", in.DeliveryID),
		zap.String("source", in.Source.String()),
		zap.String("topic", in.Topic),
		zap.String("outcome", string(outcome)),
		zap.Int("jobs_queued", queued),
	)
	return Result{Outcome: outcome, JobsQueued: queued}, nil
}

// Reprocess re-runs dispatch for an already stored delivery. Used by the
// administrative retry action after the idempotency mark has been cleared.
func (s *IntakeService) Reprocess(ctx context.Context, rec *webhook.Delivery) (Result, error) {
	if _, err := s.guard.CheckAndMark(ctx, rec.DeliveryID); err != nil {
		s.logger.Warn("idempotency guard unavailable during reprocess",
			zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
	}

	outcome, queued := s.dispatch(ctx, rec)
	if err := s.deliveries.UpdateOutcome(ctx, rec.DeliveryID, outcome, rec.ErrorDetail); err != nil {
		s.logger.Error("failed to update delivery outcome",
			zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
	}
	return Result{Outcome: outcome, JobsQueued: queued}, nil
}

// dispatch fans one delivery out into sync jobs and decides its outcome
func (s *IntakeService) dispatch(ctx context.Context, rec *webhook.Delivery) (webhook.Outcome, int) {
	switch rec.EventTopic {
	case webhook.TopicOrdersCreate:
		return s.dispatchOrder(ctx, rec, reconcile.OpStockDecrement)
	case webhook.TopicOrdersCancelled:
		return s.dispatchOrder(ctx, rec, reconcile.OpStockRestore)
	case webhook.TopicOrdersUpdated:
		return s.dispatchOrderUpdate(ctx, rec)
	case webhook.TopicInventoryUpdate:
		return s.dispatchInventoryLevel(ctx, rec)
	case webhook.TopicProductsUpdate:
		return s.dispatchProduct(ctx, rec)
	default:
		// Topics we don't reconcile are accepted and kept on record only.
		s.logger.Info("webhook topic has no handler, recorded only",
			zap.String("delivery_id", rec.DeliveryID),
			zap.String("topic", rec.EventTopic),
		)
		return webhook.OutcomeSuccess, 0
	}
}

func (s *IntakeService) dispatchOrder(ctx context.Context, rec *webhook.Delivery, op reconcile.Op) (webhook.Outcome, int) {
	var event orderEvent
	if err := json.Unmarshal(rec.RawPayload, &event); err != nil {
		rec.ErrorDetail = fmt.Sprintf("malformed order payload: %v", err)
		return webhook.OutcomeError, 0
	}

	queued := 0
	resolved := 0
	for i, line := range event.LineItems {
		if line.Quantity.Sign() <= 0 {
			continue
		}
		sku := s.resolveLineSKU(ctx, rec, line)
		if sku != "" {
			resolved++
		}

		payload := reconcile.TaskPayload{
			DeliveryID: rec.DeliveryID,
			Source:     rec.Source,
			Topic:      rec.EventTopic,
			Op:         op,
			OrderID:    event.ID.String(),
			SKU:        sku,
			VariantID:  line.VariantID.String(),
			Quantity:   line.Quantity,
		}
		jobID := fmt.Sprintf("%s:line-%d", rec.DeliveryID, i)
		if s.enqueue(ctx, rec, jobID, queue.QueueOrderProcessing, queue.PriorityOrder, payload) {
			queued++
		} else if rec.ErrorDetail != "" {
			return webhook.OutcomeError, queued
		}
	}

	if queued > 0 && resolved == 0 {
		return webhook.OutcomeNoMapping, queued
	}
	return webhook.OutcomeSuccess, queued
}

// dispatchOrderUpdate handles orders/updated, which fires for any change.
// Only a transition into the cancelled state moves stock; everything else is
// recorded and dropped.
func (s *IntakeService) dispatchOrderUpdate(ctx context.Context, rec *webhook.Delivery) (webhook.Outcome, int) {
	var event orderEvent
	if err := json.Unmarshal(rec.RawPayload, &event); err != nil {
		rec.ErrorDetail = fmt.Sprintf("malformed order payload: %v", err)
		return webhook.OutcomeError, 0
	}
	if event.CancelledAt == nil {
		return webhook.OutcomeSuccess, 0
	}
	return s.dispatchOrder(ctx, rec, reconcile.OpStockRestore)
}

func (s *IntakeService) dispatchInventoryLevel(ctx context.Context, rec *webhook.Delivery) (webhook.Outcome, int) {
	var event inventoryLevelEvent
	if err := json.Unmarshal(rec.RawPayload, &event); err != nil || event.InventoryItemID.String() == "" {
		rec.ErrorDetail = fmt.Sprintf("malformed inventory payload: %v", err)
		return webhook.OutcomeError, 0
	}

	sku, err := s.resolver.ResolveSKUByInventoryItemID(ctx, event.InventoryItemID.String())
	if err != nil {
		sku = ""
	}

	payload := reconcile.TaskPayload{
		DeliveryID:      rec.DeliveryID,
		Source:          rec.Source,
		Topic:           rec.EventTopic,
		Op:              reconcile.OpInventoryPush,
		SKU:             sku,
		InventoryItemID: event.InventoryItemID.String(),
		Quantity:        event.Available,
	}
	if !s.enqueue(ctx, rec, rec.DeliveryID, queue.QueueInventorySync, queue.PriorityInventory, payload) {
		if rec.ErrorDetail != "" {
			return webhook.OutcomeError, 0
		}
		return webhook.OutcomeDuplicate, 0
	}
	if sku == "" {
		return webhook.OutcomeNoMapping, 1
	}
	return webhook.OutcomeSuccess, 1
}

func (s *IntakeService) dispatchProduct(ctx context.Context, rec *webhook.Delivery) (webhook.Outcome, int) {
	var event productEvent
	if err := json.Unmarshal(rec.RawPayload, &event); err != nil {
		rec.ErrorDetail = fmt.Sprintf("malformed product payload: %v", err)
		return webhook.OutcomeError, 0
	}

	queued := 0
	resolved := 0
	for i, variant := range event.Variants {
		sku := variant.SKU
		if sku == "" && variant.ID.String() != "" {
			if resolvedSKU, err := s.resolver.ResolveSKUByVariantID(ctx, variant.ID.String()); err == nil {
				sku = resolvedSKU
			}
		}
		if sku != "" {
			resolved++
		}

		payload := reconcile.TaskPayload{
			DeliveryID: rec.DeliveryID,
			Source:     rec.Source,
			Topic:      rec.EventTopic,
			Op:         reconcile.OpInventoryPush,
			SKU:        sku,
			VariantID:  variant.ID.String(),
			Quantity:   variant.InventoryQuantity,
		}
		jobID := fmt.Sprintf("%s:variant-%d", rec.DeliveryID, i)
		if s.enqueue(ctx, rec, jobID, queue.QueueInventorySync, queue.PriorityInventory, payload) {
			queued++
		} else if rec.ErrorDetail != "" {
			return webhook.OutcomeError, queued
		}
	}

	if queued > 0 && resolved == 0 {
		return webhook.OutcomeNoMapping, queued
	}
	return webhook.OutcomeSuccess, queued
}

// resolveLineSKU fills a missing line SKU from the variant mapping when it can
func (s *IntakeService) resolveLineSKU(ctx context.Context, rec *webhook.Delivery, line orderLineItem) string {
	if line.SKU != "" {
		return line.SKU
	}
	if line.VariantID.String() == "" {
		return ""
	}
	sku, err := s.resolver.ResolveSKUByVariantID(ctx, line.VariantID.String())
	if err != nil {
		return ""
	}
	return sku
}

// enqueue persists one job, recording a failure on the delivery. Returns true
// only if a new job was stored; deduplicated jobs return false with no error
// detail set.
func (s *IntakeService) enqueue(ctx context.Context, rec *webhook.Delivery, jobID, queueName string, priority int, payload reconcile.TaskPayload) bool {
	data, err := payload.Marshal()
	if err != nil {
		rec.ErrorDetail = fmt.Sprintf("encode job payload: %v", err)
		return false
	}
	job, err := queue.NewJob(jobID, queueName, data, priority, s.maxAttempts)
	if err != nil {
		rec.ErrorDetail = fmt.Sprintf("build job: %v", err)
		return false
	}

	inserted, err := s.jobs.Enqueue(ctx, job)
	if err != nil {
		rec.ErrorDetail = fmt.Sprintf("enqueue job %s: %v", jobID, err)
		s.logger.Error("failed to enqueue sync job",
			zap.String("delivery_id", rec.DeliveryID),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return false
	}
	if !inserted {
		s.logger.Info("sync job already queued, skipped",
			zap.String("job_id", jobID))
		return false
	}
	return true
}

// saveRecord persists the audit row best-effort. The webhook was already
// acknowledged or is about to be; losing the audit row must not turn into a
// platform-visible failure.
func (s *IntakeService) saveRecord(ctx context.Context, rec *webhook.Delivery) {
	if err := s.deliveries.Save(ctx, rec); err != nil {
		s.logger.Error("failed to save webhook delivery record",
			zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
	}
}
