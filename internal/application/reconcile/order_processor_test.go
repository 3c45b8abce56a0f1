package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/application/mapping"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Shared mocks
// ---------------------------------------------------------------------------

// MockMappingStore is a mock implementation of integration.MappingStore
type MockMappingStore struct {
	mock.Mock
}

func (m *MockMappingStore) FindBySKU(ctx context.Context, sku string) (*integration.ProductMapping, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ProductMapping), args.Error(1)
}

func (m *MockMappingStore) FindByInventoryItemID(ctx context.Context, inventoryItemID string) (*integration.ProductMapping, error) {
	args := m.Called(ctx, inventoryItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ProductMapping), args.Error(1)
}

func (m *MockMappingStore) FindByVariantID(ctx context.Context, variantID string) (*integration.ProductMapping, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ProductMapping), args.Error(1)
}

func (m *MockMappingStore) FindByStorefrontProductID(ctx context.Context, productID string) ([]*integration.ProductMapping, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.ProductMapping), args.Error(1)
}

func (m *MockMappingStore) Save(ctx context.Context, mapping *integration.ProductMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockMappingStore) RecordSyncResult(ctx context.Context, sku string, syncErr error) error {
	args := m.Called(ctx, sku, syncErr)
	return args.Error(0)
}

// MockMarketplaceClient is a mock implementation of integration.MarketplaceClient
type MockMarketplaceClient struct {
	mock.Mock
}

func (m *MockMarketplaceClient) GetStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockMarketplaceClient) AdjustStock(ctx context.Context, productID string, delta decimal.Decimal) error {
	args := m.Called(ctx, productID, delta)
	return args.Error(0)
}

// MockStorefrontClient is a mock implementation of integration.StorefrontClient
type MockStorefrontClient struct {
	mock.Mock
}

func (m *MockStorefrontClient) PushInventoryLevel(ctx context.Context, inventoryItemID string, quantity decimal.Decimal) error {
	args := m.Called(ctx, inventoryItemID, quantity)
	return args.Error(0)
}

// MockIdempotencyGuard is a mock implementation of webhook.IdempotencyGuard
type MockIdempotencyGuard struct {
	mock.Mock
}

func (m *MockIdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (webhook.GuardResult, error) {
	args := m.Called(ctx, deliveryID)
	return args.Get(0).(webhook.GuardResult), args.Error(1)
}

func (m *MockIdempotencyGuard) MarkCompleted(ctx context.Context, deliveryID string) error {
	args := m.Called(ctx, deliveryID)
	return args.Error(0)
}

func (m *MockIdempotencyGuard) Clear(ctx context.Context, deliveryID string) error {
	args := m.Called(ctx, deliveryID)
	return args.Error(0)
}

// nopCache satisfies mapping.Cache without caching anything
type nopCache struct{}

func (nopCache) Get(context.Context, string) (string, bool, error)    { return "", false, nil }
func (nopCache) Set(context.Context, string, string, time.Duration) error { return nil }

// decimalEq matches a decimal argument by numeric value
func decimalEq(want string) interface{} {
	expected := decimal.RequireFromString(want)
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(expected)
	})
}

func activeTestMapping() *integration.ProductMapping {
	m, _ := integration.NewProductMapping("SKU-1", "mp-100", "sf-200", "var-300", "inv-400")
	m.Activate()
	return m
}

func orderJob(t *testing.T, payload TaskPayload) *queue.Job {
	t.Helper()
	data, err := payload.Marshal()
	require.NoError(t, err)
	job, err := queue.NewJob("wh-1:line-0", queue.QueueOrderProcessing, data, queue.PriorityOrder, 3)
	require.NoError(t, err)
	return job
}

type orderDeps struct {
	store       *MockMappingStore
	marketplace *MockMarketplaceClient
	storefront  *MockStorefrontClient
	guard       *MockIdempotencyGuard
	processor   *OrderProcessor
}

func newOrderDeps() orderDeps {
	store := new(MockMappingStore)
	marketplace := new(MockMarketplaceClient)
	storefront := new(MockStorefrontClient)
	guard := new(MockIdempotencyGuard)
	resolver := mapping.NewResolver(store, nopCache{}, mapping.DefaultConfig(), zap.NewNop())
	return orderDeps{
		store:       store,
		marketplace: marketplace,
		storefront:  storefront,
		guard:       guard,
		processor:   NewOrderProcessor(resolver, store, marketplace, storefront, guard, zap.NewNop()),
	}
}

// ---------------------------------------------------------------------------
// OrderProcessor Tests
// ---------------------------------------------------------------------------

func TestOrderProcessor_StockDecrement(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)
	d.marketplace.On("GetStock", ctx, "mp-100").Return(decimal.NewFromInt(10), nil)
	d.marketplace.On("AdjustStock", ctx, "mp-100", decimalEq("-2")).Return(nil)
	d.store.On("RecordSyncResult", ctx, "SKU-1", nil).Return(nil)
	d.guard.On("MarkCompleted", ctx, "wh-1").Return(nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		OrderID:    "1001",
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(2),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	d.marketplace.AssertExpectations(t)
	d.store.AssertExpectations(t)
	d.guard.AssertExpectations(t)
	// Storefront-originated order does not push back to the storefront
	d.storefront.AssertNotCalled(t, "PushInventoryLevel", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderProcessor_StockRestore(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)
	d.marketplace.On("GetStock", ctx, "mp-100").Return(decimal.NewFromInt(5), nil)
	d.marketplace.On("AdjustStock", ctx, "mp-100", decimalEq("3")).Return(nil)
	d.store.On("RecordSyncResult", ctx, "SKU-1", nil).Return(nil)
	d.guard.On("MarkCompleted", ctx, "wh-1").Return(nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCancelled,
		Op:         OpStockRestore,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(3),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	d.marketplace.AssertExpectations(t)
}

func TestOrderProcessor_ClampsAtZero(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	// Only 3 in stock, order wants 5: the delta is clamped to -3
	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)
	d.marketplace.On("GetStock", ctx, "mp-100").Return(decimal.NewFromInt(3), nil)
	d.marketplace.On("AdjustStock", ctx, "mp-100", decimalEq("-3")).Return(nil)
	d.store.On("RecordSyncResult", ctx, "SKU-1", nil).Return(nil)
	d.guard.On("MarkCompleted", ctx, "wh-1").Return(nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(5),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultClamped, result)
	d.marketplace.AssertExpectations(t)
}

func TestOrderProcessor_MarketplaceOrderMirrorsToStorefront(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)
	d.marketplace.On("GetStock", ctx, "mp-100").Return(decimal.NewFromInt(10), nil)
	d.marketplace.On("AdjustStock", ctx, "mp-100", decimalEq("-4")).Return(nil)
	d.storefront.On("PushInventoryLevel", ctx, "inv-400", decimalEq("6")).Return(nil)
	d.store.On("RecordSyncResult", ctx, "SKU-1", nil).Return(nil)
	d.guard.On("MarkCompleted", ctx, "wh-2").Return(nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-2",
		Source:     webhook.SourceMarketplace,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(4),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	d.storefront.AssertExpectations(t)
}

func TestOrderProcessor_NoMapping(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	d.store.On("FindBySKU", ctx, "SKU-404").Return(nil, integration.ErrMappingNotFound)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		SKU:        "SKU-404",
		Quantity:   decimal.NewFromInt(1),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultNoMapping, result)
	// No external calls for unmapped SKUs
	d.marketplace.AssertNotCalled(t, "GetStock", mock.Anything, mock.Anything)
}

func TestOrderProcessor_PendingMappingSkipped(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	pending, _ := integration.NewProductMapping("SKU-1", "mp-100", "", "", "")
	d.store.On("FindBySKU", ctx, "SKU-1").Return(pending, nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(1),
	})

	result, err := d.processor.Process(ctx, job)

	require.NoError(t, err)
	assert.Equal(t, ResultNoMapping, result)
}

func TestOrderProcessor_MalformedPayloadIsPermanent(t *testing.T) {
	d := newOrderDeps()

	job, err := queue.NewJob("j1", queue.QueueOrderProcessing, []byte("not json"), 0, 3)
	require.NoError(t, err)

	_, err = d.processor.Process(context.Background(), job)

	assert.True(t, queue.IsPermanent(err))
}

func TestOrderProcessor_WrongOpIsPermanent(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicInventoryUpdate,
		Op:         OpInventoryPush,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(1),
	})

	_, err := d.processor.Process(ctx, job)

	assert.True(t, queue.IsPermanent(err))
}

func TestOrderProcessor_TransientPlatformErrorPropagates(t *testing.T) {
	d := newOrderDeps()
	ctx := context.Background()

	platformErr := &integration.PlatformError{
		Platform: "marketplace", Op: "GetStock", StatusCode: 503, Transient: true,
		Err: errors.New("unavailable"),
	}
	d.store.On("FindBySKU", ctx, "SKU-1").Return(activeTestMapping(), nil)
	d.marketplace.On("GetStock", ctx, "mp-100").Return(decimal.Zero, platformErr)

	job := orderJob(t, TaskPayload{
		DeliveryID: "wh-1",
		Source:     webhook.SourceStorefront,
		Topic:      webhook.TopicOrdersCreate,
		Op:         OpStockDecrement,
		SKU:        "SKU-1",
		Quantity:   decimal.NewFromInt(1),
	})

	_, err := d.processor.Process(ctx, job)

	assert.True(t, integration.IsTransient(err))
	assert.False(t, queue.IsPermanent(err))
}

func TestOrderProcessor_Queue(t *testing.T) {
	d := newOrderDeps()
	assert.Equal(t, queue.QueueOrderProcessing, d.processor.Queue())
}
