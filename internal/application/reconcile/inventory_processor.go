package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncbridge/backend/internal/application/mapping"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// InventoryProcessor consumes the inventory-sync queue. It pushes absolute
// storefront inventory levels to the marketplace side, expressed through the
// marketplace client's get/adjust API.
type InventoryProcessor struct {
	resolver    *mapping.Resolver
	mappings    integration.MappingStore
	marketplace integration.MarketplaceClient
	guard       webhook.IdempotencyGuard
	logger      *zap.Logger
}

// NewInventoryProcessor creates a new inventory reconciliation processor
func NewInventoryProcessor(
	resolver *mapping.Resolver,
	mappings integration.MappingStore,
	marketplace integration.MarketplaceClient,
	guard webhook.IdempotencyGuard,
	logger *zap.Logger,
) *InventoryProcessor {
	return &InventoryProcessor{
		resolver:    resolver,
		mappings:    mappings,
		marketplace: marketplace,
		guard:       guard,
		logger:      logger,
	}
}

// Queue returns the queue this processor consumes
func (p *InventoryProcessor) Queue() string {
	return queue.QueueInventorySync
}

// Process applies one inventory job
func (p *InventoryProcessor) Process(ctx context.Context, job *queue.Job) (string, error) {
	payload, err := UnmarshalTaskPayload(job.Payload)
	if err != nil {
		return "", queue.Permanent(err)
	}
	if payload.Op != OpInventoryPush {
		return "", queue.Permanent(fmt.Errorf("%w: op %q not valid for inventory queue", ErrInvalidPayload, payload.Op))
	}

	sku := payload.SKU
	if sku == "" && payload.InventoryItemID != "" {
		sku, err = p.resolver.ResolveSKUByInventoryItemID(ctx, payload.InventoryItemID)
		if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
			return "", fmt.Errorf("resolve inventory item %s: %w", payload.InventoryItemID, err)
		}
	}
	if sku == "" {
		p.logger.Info("inventory job skipped, unmapped inventory item",
			zap.String("job_id", job.JobID),
			zap.String("inventory_item_id", payload.InventoryItemID),
		)
		return ResultNoMapping, nil
	}

	m, err := p.resolver.ActiveMapping(ctx, sku)
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) || errors.Is(err, integration.ErrMappingNotActive) {
			p.logger.Info("inventory job skipped, no active mapping",
				zap.String("job_id", job.JobID),
				zap.String("sku", sku),
			)
			return ResultNoMapping, nil
		}
		return "", fmt.Errorf("resolve mapping for %s: %w", sku, err)
	}

	current, err := p.marketplace.GetStock(ctx, m.MarketplaceProductID)
	if err != nil {
		return "", err
	}

	target := payload.Quantity
	if target.IsNegative() {
		p.logger.Warn("negative inventory level clamped at zero",
			zap.String("job_id", job.JobID),
			zap.String("sku", sku),
			zap.String("reported", target.String()),
		)
		target = target.Sub(target) // zero
	}

	delta := target.Sub(current)
	result := ResultApplied
	if delta.IsZero() {
		result = ResultNoop
	} else if err := p.marketplace.AdjustStock(ctx, m.MarketplaceProductID, delta); err != nil {
		return "", err
	}

	if err := p.mappings.RecordSyncResult(ctx, sku, nil); err != nil {
		p.logger.Warn("failed to record mapping sync result", zap.String("sku", sku), zap.Error(err))
	}
	if err := p.guard.MarkCompleted(ctx, payload.DeliveryID); err != nil {
		p.logger.Warn("failed to mark delivery completed",
			zap.String("delivery_id", payload.DeliveryID), zap.Error(err))
	}

	p.logger.Info("inventory job applied",
		zap.String("job_id", job.JobID),
		zap.String("sku", sku),
		zap.String("target", target.String()),
		zap.String("delta", delta.String()),
	)
	return result, nil
}
