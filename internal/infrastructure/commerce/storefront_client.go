package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
	"golang.org/x/time/rate"
)

const storefrontPlatform = "storefront"

// ErrStorefrontInvalidItemID indicates an empty inventory item ID
var ErrStorefrontInvalidItemID = errors.New("storefront: invalid inventory item ID")

// StorefrontConfig holds connection settings for the storefront admin API
type StorefrontConfig struct {
	BaseURL        string
	AccessToken    string
	TimeoutSeconds int
	RateLimit      float64
	Burst          int
}

// Validate checks the configuration
func (c *StorefrontConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("storefront: base URL is required")
	}
	if c.AccessToken == "" {
		return errors.New("storefront: access token is required")
	}
	return nil
}

// HTTPStorefrontClient implements integration.StorefrontClient against the
// storefront's admin inventory API
type HTTPStorefrontClient struct {
	config     *StorefrontConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPStorefrontClient creates a new storefront API client
func NewHTTPStorefrontClient(config *StorefrontConfig) (*HTTPStorefrontClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 2
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 4
	}

	return &HTTPStorefrontClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}, nil
}

// setLevelRequest is the POST inventory level body
type setLevelRequest struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Available       decimal.Decimal `json:"available"`
}

// PushInventoryLevel sets the available quantity of a storefront inventory
// item to an absolute value
func (c *HTTPStorefrontClient) PushInventoryLevel(ctx context.Context, inventoryItemID string, quantity decimal.Decimal) error {
	if inventoryItemID == "" {
		return ErrStorefrontInvalidItemID
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(setLevelRequest{
		InventoryItemID: inventoryItemID,
		Available:       quantity,
	})
	if err != nil {
		return err
	}

	url := c.config.BaseURL + "/admin/inventory_levels/set"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("X-Access-Token", c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(storefrontPlatform, "push_inventory_level", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return classify(storefrontPlatform, "push_inventory_level", resp.StatusCode,
			fmt.Errorf("unexpected response: %s", truncate(body, 256)))
	}
	return nil
}

// Ensure HTTPStorefrontClient implements StorefrontClient
var _ integration.StorefrontClient = (*HTTPStorefrontClient)(nil)
