package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
)

func newTestMapping(t *testing.T, sku string) *integration.ProductMapping {
	t.Helper()
	m, err := integration.NewProductMapping(sku, "mp-"+sku, "sf-"+sku, "var-"+sku, "inv-"+sku)
	require.NoError(t, err)
	m.Activate()
	return m
}

func TestProductMappingRepository_SaveAndLookups(t *testing.T) {
	repo := NewGormProductMappingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newTestMapping(t, "SKU-1")))

	bySKU, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "mp-SKU-1", bySKU.MarketplaceProductID)
	assert.Equal(t, integration.MappingStatusActive, bySKU.Status)

	byItem, err := repo.FindByInventoryItemID(ctx, "inv-SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", byItem.SKU)

	byVariant, err := repo.FindByVariantID(ctx, "var-SKU-1")
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", byVariant.SKU)
}

func TestProductMappingRepository_NotFound(t *testing.T) {
	repo := NewGormProductMappingRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.FindBySKU(ctx, "missing")
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)

	_, err = repo.FindByInventoryItemID(ctx, "missing")
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)

	_, err = repo.FindByVariantID(ctx, "missing")
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
}

func TestProductMappingRepository_FindByStorefrontProductID(t *testing.T) {
	repo := NewGormProductMappingRepository(setupTestDB(t))
	ctx := context.Background()

	a := newTestMapping(t, "SKU-B")
	a.StorefrontProductID = "sf-200"
	b := newTestMapping(t, "SKU-A")
	b.StorefrontProductID = "sf-200"
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))
	require.NoError(t, repo.Save(ctx, newTestMapping(t, "SKU-C")))

	mappings, err := repo.FindByStorefrontProductID(ctx, "sf-200")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "SKU-A", mappings[0].SKU)
	assert.Equal(t, "SKU-B", mappings[1].SKU)
}

func TestProductMappingRepository_RecordSyncResult(t *testing.T) {
	repo := NewGormProductMappingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newTestMapping(t, "SKU-1")))

	// Failure flips the mapping to ERROR
	require.NoError(t, repo.RecordSyncResult(ctx, "SKU-1", errors.New("adjust rejected")))
	m, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, integration.MappingStatusError, m.Status)
	assert.Equal(t, "adjust rejected", m.LastSyncError)
	assert.NotNil(t, m.LastSyncAt)

	// Success clears the error but keeps the status for operator review
	require.NoError(t, repo.RecordSyncResult(ctx, "SKU-1", nil))
	m, err = repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Empty(t, m.LastSyncError)
	assert.Equal(t, integration.MappingStatusError, m.Status)

	err = repo.RecordSyncResult(ctx, "missing", nil)
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
}
