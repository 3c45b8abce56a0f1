package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/application/mapping"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// OrderProcessor consumes the order-processing queue. It translates order
// create/cancel events into marketplace stock mutations and, for orders that
// originated on the marketplace side, mirrors the resulting level back to the
// storefront.
type OrderProcessor struct {
	resolver    *mapping.Resolver
	mappings    integration.MappingStore
	marketplace integration.MarketplaceClient
	storefront  integration.StorefrontClient
	guard       webhook.IdempotencyGuard
	logger      *zap.Logger
}

// NewOrderProcessor creates a new order reconciliation processor
func NewOrderProcessor(
	resolver *mapping.Resolver,
	mappings integration.MappingStore,
	marketplace integration.MarketplaceClient,
	storefront integration.StorefrontClient,
	guard webhook.IdempotencyGuard,
	logger *zap.Logger,
) *OrderProcessor {
	return &OrderProcessor{
		resolver:    resolver,
		mappings:    mappings,
		marketplace: marketplace,
		storefront:  storefront,
		guard:       guard,
		logger:      logger,
	}
}

// Queue returns the queue this processor consumes
func (p *OrderProcessor) Queue() string {
	return queue.QueueOrderProcessing
}

// Process applies one order job. Mappings are re-resolved here: the state
// captured at enqueue time may have changed before the job was claimed.
func (p *OrderProcessor) Process(ctx context.Context, job *queue.Job) (string, error) {
	payload, err := UnmarshalTaskPayload(job.Payload)
	if err != nil {
		return "", queue.Permanent(err)
	}

	m, err := p.resolver.ActiveMapping(ctx, payload.SKU)
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) || errors.Is(err, integration.ErrMappingNotActive) {
			// Not a failure: retrying won't create a mapping. Complete with
			// no external calls and leave the row for human resolution.
			p.logger.Info("order job skipped, no active mapping",
				zap.String("job_id", job.JobID),
				zap.String("sku", payload.SKU),
			)
			return ResultNoMapping, nil
		}
		return "", fmt.Errorf("resolve mapping for %s: %w", payload.SKU, err)
	}

	var delta decimal.Decimal
	switch payload.Op {
	case OpStockDecrement:
		delta = payload.Quantity.Neg()
	case OpStockRestore:
		delta = payload.Quantity
	default:
		return "", queue.Permanent(fmt.Errorf("%w: op %q not valid for order queue", ErrInvalidPayload, payload.Op))
	}

	current, err := p.marketplace.GetStock(ctx, m.MarketplaceProductID)
	if err != nil {
		return "", err
	}

	result := ResultApplied
	next := current.Add(delta)
	if next.IsNegative() {
		// Stock can never go negative: clamp to zero and keep going.
		p.logger.Warn("stock adjustment clamped at zero",
			zap.String("job_id", job.JobID),
			zap.String("sku", payload.SKU),
			zap.String("marketplace_product_id", m.MarketplaceProductID),
			zap.String("current", current.String()),
			zap.String("delta", delta.String()),
		)
		delta = current.Neg()
		next = decimal.Zero
		result = ResultClamped
	}

	if !delta.IsZero() {
		if err := p.marketplace.AdjustStock(ctx, m.MarketplaceProductID, delta); err != nil {
			return "", err
		}
	}

	// A marketplace-side order means the storefront has not seen the stock
	// change yet; push the resulting level so both platforms agree.
	if payload.Source == webhook.SourceMarketplace && m.StorefrontInventoryItemID != "" {
		if err := p.storefront.PushInventoryLevel(ctx, m.StorefrontInventoryItemID, next); err != nil {
			return "", err
		}
	}

	p.finishDelivery(ctx, payload, m.SKU)

	p.logger.Info("order job applied",
		zap.String("job_id", job.JobID),
		zap.String("op", string(payload.Op)),
		zap.String("sku", payload.SKU),
		zap.String("order_id", payload.OrderID),
		zap.String("new_stock", next.String()),
	)
	return result, nil
}

// finishDelivery records the sync result on the mapping and completes the
// idempotency mark. Both are best-effort: the mutation already happened and
// must not be retried because bookkeeping failed.
func (p *OrderProcessor) finishDelivery(ctx context.Context, payload TaskPayload, sku string) {
	if err := p.mappings.RecordSyncResult(ctx, sku, nil); err != nil {
		p.logger.Warn("failed to record mapping sync result", zap.String("sku", sku), zap.Error(err))
	}
	if err := p.guard.MarkCompleted(ctx, payload.DeliveryID); err != nil {
		p.logger.Warn("failed to mark delivery completed",
			zap.String("delivery_id", payload.DeliveryID), zap.Error(err))
	}
}
