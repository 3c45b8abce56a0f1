package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductMappingRepository implements MappingStore using GORM
type GormProductMappingRepository struct {
	db *gorm.DB
}

// NewGormProductMappingRepository creates a new GormProductMappingRepository
func NewGormProductMappingRepository(db *gorm.DB) *GormProductMappingRepository {
	return &GormProductMappingRepository{db: db}
}

// FindBySKU finds a mapping by internal SKU
func (r *GormProductMappingRepository) FindBySKU(ctx context.Context, sku string) (*integration.ProductMapping, error) {
	return r.findOne(ctx, "sku = ?", sku)
}

// FindByInventoryItemID finds a mapping by storefront inventory item ID
func (r *GormProductMappingRepository) FindByInventoryItemID(ctx context.Context, inventoryItemID string) (*integration.ProductMapping, error) {
	return r.findOne(ctx, "storefront_inventory_item_id = ?", inventoryItemID)
}

// FindByVariantID finds a mapping by storefront variant ID
func (r *GormProductMappingRepository) FindByVariantID(ctx context.Context, variantID string) (*integration.ProductMapping, error) {
	return r.findOne(ctx, "storefront_variant_id = ?", variantID)
}

// FindByStorefrontProductID finds all mappings for a storefront product
func (r *GormProductMappingRepository) FindByStorefrontProductID(ctx context.Context, productID string) ([]*integration.ProductMapping, error) {
	var mappingModels []models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("storefront_product_id = ?", productID).
		Order("sku ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, err
	}

	mappings := make([]*integration.ProductMapping, len(mappingModels))
	for i := range mappingModels {
		mappings[i] = mappingModels[i].ToDomain()
	}
	return mappings, nil
}

// Save creates or updates a mapping
func (r *GormProductMappingRepository) Save(ctx context.Context, mapping *integration.ProductMapping) error {
	model := models.ProductMappingModelFromDomain(mapping)
	return r.db.WithContext(ctx).Save(model).Error
}

// RecordSyncResult updates the sync status and timestamp of a mapping.
// Success keeps the current status; failure flips the mapping to ERROR so
// it stops matching until an operator intervenes.
func (r *GormProductMappingRepository) RecordSyncResult(ctx context.Context, sku string, syncErr error) error {
	updates := map[string]interface{}{
		"last_sync_at":    time.Now(),
		"last_sync_error": "",
		"updated_at":      time.Now(),
	}
	if syncErr != nil {
		updates["last_sync_error"] = syncErr.Error()
		updates["status"] = string(integration.MappingStatusError)
	}

	result := r.db.WithContext(ctx).
		Model(&models.ProductMappingModel{}).
		Where("sku = ?", sku).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}

func (r *GormProductMappingRepository) findOne(ctx context.Context, cond string, arg string) (*integration.ProductMapping, error) {
	var model models.ProductMappingModel
	if err := r.db.WithContext(ctx).First(&model, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormProductMappingRepository implements MappingStore
var _ integration.MappingStore = (*GormProductMappingRepository)(nil)
