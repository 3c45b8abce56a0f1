package commerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
)

func newStorefrontClient(t *testing.T, baseURL string) *HTTPStorefrontClient {
	t.Helper()
	client, err := NewHTTPStorefrontClient(&StorefrontConfig{
		BaseURL:     baseURL,
		AccessToken: "test-token",
		RateLimit:   1000,
		Burst:       1000,
	})
	require.NoError(t, err)
	return client
}

func TestStorefrontClient_PushInventoryLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/inventory_levels/set", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Access-Token"))

		var body setLevelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "inv-400", body.InventoryItemID)
		assert.True(t, body.Available.Equal(decimal.NewFromInt(6)))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newStorefrontClient(t, srv.URL).PushInventoryLevel(context.Background(), "inv-400", decimal.NewFromInt(6))

	assert.NoError(t, err)
}

func TestStorefrontClient_PushInventoryLevel_EmptyItemID(t *testing.T) {
	client := newStorefrontClient(t, "http://localhost:1")

	err := client.PushInventoryLevel(context.Background(), "", decimal.NewFromInt(1))

	assert.ErrorIs(t, err, ErrStorefrontInvalidItemID)
}

func TestStorefrontClient_PushInventoryLevel_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newStorefrontClient(t, srv.URL).PushInventoryLevel(context.Background(), "inv-400", decimal.NewFromInt(6))

	require.Error(t, err)
	assert.True(t, integration.IsTransient(err))
}

func TestStorefrontClient_PushInventoryLevel_UnknownItemIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "inventory item not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newStorefrontClient(t, srv.URL).PushInventoryLevel(context.Background(), "inv-missing", decimal.NewFromInt(6))

	require.Error(t, err)
	assert.False(t, integration.IsTransient(err))
	var pe *integration.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "push_inventory_level", pe.Op)
	assert.Equal(t, storefrontPlatform, pe.Platform)
}

func TestStorefrontConfig_Validate(t *testing.T) {
	_, err := NewHTTPStorefrontClient(&StorefrontConfig{AccessToken: "token"})
	assert.Error(t, err)

	_, err = NewHTTPStorefrontClient(&StorefrontConfig{BaseURL: "http://example.com"})
	assert.Error(t, err)
}
