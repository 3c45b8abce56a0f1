package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	appmapping "github.com/syncbridge/backend/internal/application/mapping"
	appwebhook "github.com/syncbridge/backend/internal/application/webhook"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Stub collaborators
// ---------------------------------------------------------------------------

type stubDeliveries struct{}

func (stubDeliveries) Save(context.Context, *webhook.Delivery) error { return nil }
func (stubDeliveries) UpdateOutcome(context.Context, string, webhook.Outcome, string) error {
	return nil
}
func (stubDeliveries) FindByDeliveryID(context.Context, string) (*webhook.Delivery, error) {
	return nil, webhook.ErrDeliveryNotFound
}
func (stubDeliveries) Recent(context.Context, int) ([]*webhook.Delivery, error) { return nil, nil }
func (stubDeliveries) CountByOutcome(context.Context) (map[webhook.Outcome]int64, error) {
	return nil, nil
}

type stubGuard struct{ result webhook.GuardResult }

func (g stubGuard) CheckAndMark(context.Context, string) (webhook.GuardResult, error) {
	return g.result, nil
}
func (stubGuard) MarkCompleted(context.Context, string) error { return nil }
func (stubGuard) Clear(context.Context, string) error         { return nil }

type stubJobs struct{ enqueueErr error }

func (s stubJobs) Enqueue(context.Context, *queue.Job) (bool, error) {
	if s.enqueueErr != nil {
		return false, s.enqueueErr
	}
	return true, nil
}
func (stubJobs) Claim(context.Context, string, int, time.Duration) ([]*queue.Job, error) {
	return nil, nil
}
func (stubJobs) Update(context.Context, *queue.Job) error { return nil }
func (stubJobs) FindByJobID(context.Context, string) (*queue.Job, error) {
	return nil, queue.ErrJobNotFound
}
func (stubJobs) FindDead(context.Context, int, int) ([]*queue.Job, int64, error) {
	return nil, 0, nil
}
func (stubJobs) Counts(context.Context, string) (queue.Counts, error) { return queue.Counts{}, nil }
func (stubJobs) TrimCompleted(context.Context, string, int) (int64, error) {
	return 0, nil
}

type stubMappings struct{}

func (stubMappings) FindBySKU(context.Context, string) (*integration.ProductMapping, error) {
	return nil, integration.ErrMappingNotFound
}
func (stubMappings) FindByInventoryItemID(context.Context, string) (*integration.ProductMapping, error) {
	return nil, integration.ErrMappingNotFound
}
func (stubMappings) FindByVariantID(context.Context, string) (*integration.ProductMapping, error) {
	return nil, integration.ErrMappingNotFound
}
func (stubMappings) FindByStorefrontProductID(context.Context, string) ([]*integration.ProductMapping, error) {
	return nil, integration.ErrMappingNotFound
}
func (stubMappings) Save(context.Context, *integration.ProductMapping) error { return nil }
func (stubMappings) RecordSyncResult(context.Context, string, error) error   { return nil }

type nopResolverCache struct{}

func (nopResolverCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (nopResolverCache) Set(context.Context, string, string, time.Duration) error {
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// receiveRouter mounts Receive behind a stub of the signature middleware's
// context contract
func receiveRouter(guardResult webhook.GuardResult, enqueueErr error, topic, body string) *gin.Engine {
	resolver := appmapping.NewResolver(stubMappings{}, nopResolverCache{}, appmapping.DefaultConfig(), zap.NewNop())
	intake := appwebhook.NewIntakeService(stubDeliveries{}, stubGuard{result: guardResult},
		stubJobs{enqueueErr: enqueueErr}, resolver, 3, zap.NewNop())
	h := NewWebhookHandler(intake, nil, nil, 20, zap.NewNop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/:source/:resource/:action", func(c *gin.Context) {
		c.Set(middleware.ContextKeyDeliveryID, "wh-1")
		c.Set(middleware.ContextKeyTopic, topic)
		c.Set(middleware.ContextKeyShopDomain, "shop.example.com")
		c.Set(middleware.ContextKeySource, webhook.SourceStorefront)
		c.Set(middleware.ContextKeyRawBody, []byte(body))
		c.Next()
	}, h.Receive)
	return r
}

func postWebhook(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/storefront/orders/create", nil))
	return w
}

// ---------------------------------------------------------------------------
// Receive Tests
// ---------------------------------------------------------------------------

func TestReceive_QueuedDeliveryAnswersQueued(t *testing.T) {
	r := receiveRouter(webhook.GuardResult{Proceed: true}, nil,
		webhook.TopicOrdersCreate, `{"id":1001,"line_items":[{"sku":"SKU-1","quantity":1}]}`)

	w := postWebhook(r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"queued"`)
	assert.Contains(t, w.Body.String(), `"delivery_id":"wh-1"`)
	assert.NotContains(t, w.Body.String(), `"outcome"`)
}

func TestReceive_DuplicateDeliveryAnswersAlreadyProcessed(t *testing.T) {
	r := receiveRouter(webhook.GuardResult{Proceed: false, AlreadyDone: true}, nil,
		webhook.TopicOrdersCreate, `{"id":1001}`)

	w := postWebhook(r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"already_processed"`)
}

func TestReceive_UnmappedInventoryAnswersNoMapping(t *testing.T) {
	r := receiveRouter(webhook.GuardResult{Proceed: true}, nil,
		webhook.TopicInventoryUpdate, `{"inventory_item_id":400,"available":3}`)

	w := postWebhook(r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"no_mapping"`)
}

func TestReceive_EnqueueFailureStillAnswers200ErrorLogged(t *testing.T) {
	r := receiveRouter(webhook.GuardResult{Proceed: true}, assert.AnError,
		webhook.TopicOrdersCreate, `{"id":1001,"line_items":[{"sku":"SKU-1","quantity":1}]}`)

	w := postWebhook(r)

	// Still 200: the payload is on record and redelivery would not help
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error_logged"`)
}

func TestWireStatus_CoversAllOutcomes(t *testing.T) {
	tests := []struct {
		outcome webhook.Outcome
		want    string
	}{
		{webhook.OutcomeSuccess, "queued"},
		{webhook.OutcomeDuplicate, "already_processed"},
		{webhook.OutcomeNoMapping, "no_mapping"},
		{webhook.OutcomeError, "error_logged"},
		{webhook.Outcome("unknown"), "error_logged"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, wireStatus(tt.outcome), "outcome %q", tt.outcome)
	}
}
