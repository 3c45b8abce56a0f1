package integration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMappingInvalidSKU       = errors.New("integration: invalid SKU")
	ErrMappingInvalidProductID = errors.New("integration: invalid marketplace product ID")
	ErrMappingNotFound         = errors.New("integration: product mapping not found")
	ErrMappingNotActive        = errors.New("integration: product mapping not active")
	ErrMappingAlreadyExists    = errors.New("integration: product mapping already exists")
)

// ---------------------------------------------------------------------------
// MappingStatus
// ---------------------------------------------------------------------------

// MappingStatus represents the lifecycle state of a product mapping
type MappingStatus string

const (
	// MappingStatusActive means the mapping is usable for reconciliation
	MappingStatusActive MappingStatus = "ACTIVE"
	// MappingStatusPending means the mapping awaits human resolution; events
	// referencing it are logged with a no_mapping outcome, not failed
	MappingStatusPending MappingStatus = "PENDING"
	// MappingStatusError means the last sync attempt hit a permanent error
	MappingStatusError MappingStatus = "ERROR"
)

// IsValid returns true if the status is valid
func (s MappingStatus) IsValid() bool {
	switch s {
	case MappingStatusActive, MappingStatusPending, MappingStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of MappingStatus
func (s MappingStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// ProductMapping Entity
// ---------------------------------------------------------------------------

// ProductMapping associates an internal SKU with the product identifiers on
// both external platforms. It is read-mostly from the reconciliation core's
// perspective: only the sync status and timestamp are written back.
type ProductMapping struct {
	ID                        uuid.UUID
	SKU                       string
	MarketplaceProductID      string
	StorefrontProductID       string
	StorefrontVariantID       string
	StorefrontInventoryItemID string
	Status                    MappingStatus
	LastSyncAt                *time.Time
	LastSyncError             string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// NewProductMapping creates a new product mapping in the pending state
func NewProductMapping(sku, marketplaceProductID, storefrontProductID, storefrontVariantID, storefrontInventoryItemID string) (*ProductMapping, error) {
	if sku == "" {
		return nil, ErrMappingInvalidSKU
	}
	if marketplaceProductID == "" {
		return nil, ErrMappingInvalidProductID
	}

	now := time.Now()
	return &ProductMapping{
		ID:                        uuid.New(),
		SKU:                       sku,
		MarketplaceProductID:      marketplaceProductID,
		StorefrontProductID:       storefrontProductID,
		StorefrontVariantID:       storefrontVariantID,
		StorefrontInventoryItemID: storefrontInventoryItemID,
		Status:                    MappingStatusPending,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}, nil
}

// IsUsable returns true if the mapping may be used by a reconciliation worker
func (m *ProductMapping) IsUsable() bool {
	return m.Status == MappingStatusActive
}

// Activate marks the mapping as usable
func (m *ProductMapping) Activate() {
	m.Status = MappingStatusActive
	m.UpdatedAt = time.Now()
}

// RecordSyncSuccess records a successful cross-platform sync
func (m *ProductMapping) RecordSyncSuccess() {
	now := time.Now()
	m.LastSyncAt = &now
	m.LastSyncError = ""
	m.UpdatedAt = now
}

// RecordSyncFailure records a failed sync with the error detail
func (m *ProductMapping) RecordSyncFailure(errMsg string) {
	now := time.Now()
	m.LastSyncAt = &now
	m.LastSyncError = errMsg
	m.Status = MappingStatusError
	m.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// MappingStore Interface
// ---------------------------------------------------------------------------

// MappingStore defines the interface for product mapping persistence
type MappingStore interface {
	// FindBySKU finds a mapping by internal SKU
	FindBySKU(ctx context.Context, sku string) (*ProductMapping, error)

	// FindByInventoryItemID finds a mapping by storefront inventory item ID
	FindByInventoryItemID(ctx context.Context, inventoryItemID string) (*ProductMapping, error)

	// FindByVariantID finds a mapping by storefront variant ID
	FindByVariantID(ctx context.Context, variantID string) (*ProductMapping, error)

	// FindByStorefrontProductID finds all mappings for a storefront product
	FindByStorefrontProductID(ctx context.Context, productID string) ([]*ProductMapping, error)

	// Save creates or updates a mapping
	Save(ctx context.Context, mapping *ProductMapping) error

	// RecordSyncResult updates the sync status and timestamp of a mapping.
	// A nil syncErr records success; a non-nil syncErr records the failure.
	RecordSyncResult(ctx context.Context, sku string, syncErr error) error
}
