package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// ProductMappingModel is the persistence model for the ProductMapping domain
// entity. Each storefront identifier gets its own unique index because every
// webhook shape carries a different one.
type ProductMappingModel struct {
	ID                        uuid.UUID  `gorm:"type:uuid;primary_key"`
	SKU                       string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_mapping_sku"`
	MarketplaceProductID      string     `gorm:"type:varchar(100);not null;index:idx_mapping_marketplace_product"`
	StorefrontProductID       string     `gorm:"type:varchar(100);index:idx_mapping_storefront_product"`
	StorefrontVariantID       string     `gorm:"type:varchar(100);index:idx_mapping_variant"`
	StorefrontInventoryItemID string     `gorm:"type:varchar(100);index:idx_mapping_inventory_item"`
	Status                    string     `gorm:"type:varchar(20);not null;default:'PENDING'"`
	LastSyncAt                *time.Time `gorm:"index"`
	LastSyncError             string     `gorm:"type:text"`
	CreatedAt                 time.Time  `gorm:"not null"`
	UpdatedAt                 time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductMappingModel) TableName() string {
	return "product_mappings"
}

// ToDomain converts the persistence model to a domain ProductMapping entity
func (m *ProductMappingModel) ToDomain() *integration.ProductMapping {
	return &integration.ProductMapping{
		ID:                        m.ID,
		SKU:                       m.SKU,
		MarketplaceProductID:      m.MarketplaceProductID,
		StorefrontProductID:       m.StorefrontProductID,
		StorefrontVariantID:       m.StorefrontVariantID,
		StorefrontInventoryItemID: m.StorefrontInventoryItemID,
		Status:                    integration.MappingStatus(m.Status),
		LastSyncAt:                m.LastSyncAt,
		LastSyncError:             m.LastSyncError,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ProductMapping entity
func (m *ProductMappingModel) FromDomain(pm *integration.ProductMapping) {
	m.ID = pm.ID
	m.SKU = pm.SKU
	m.MarketplaceProductID = pm.MarketplaceProductID
	m.StorefrontProductID = pm.StorefrontProductID
	m.StorefrontVariantID = pm.StorefrontVariantID
	m.StorefrontInventoryItemID = pm.StorefrontInventoryItemID
	m.Status = string(pm.Status)
	m.LastSyncAt = pm.LastSyncAt
	m.LastSyncError = pm.LastSyncError
	m.CreatedAt = pm.CreatedAt
	m.UpdatedAt = pm.UpdatedAt
}

// ProductMappingModelFromDomain creates a new persistence model from a domain ProductMapping
func ProductMappingModelFromDomain(pm *integration.ProductMapping) *ProductMappingModel {
	m := &ProductMappingModel{}
	m.FromDomain(pm)
	return m
}
