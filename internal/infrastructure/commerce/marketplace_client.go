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

// maxResponseSize is the maximum allowed response size from a platform API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const marketplacePlatform = "marketplace"

// ErrMarketplaceInvalidProductID indicates an empty or malformed product ID
var ErrMarketplaceInvalidProductID = errors.New("marketplace: invalid product ID")

// MarketplaceConfig holds connection settings for the marketplace stock API
type MarketplaceConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	// RateLimit is the sustained request rate; Burst allows short spikes.
	// The marketplace throttles hard, so the client paces itself instead of
	// burning retry budget on 429s.
	RateLimit float64
	Burst     int
}

// Validate checks the configuration
func (c *MarketplaceConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("marketplace: base URL is required")
	}
	if c.APIKey == "" {
		return errors.New("marketplace: API key is required")
	}
	return nil
}

// HTTPMarketplaceClient implements integration.MarketplaceClient against the
// marketplace's REST stock API
type HTTPMarketplaceClient struct {
	config     *MarketplaceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPMarketplaceClient creates a new marketplace API client
func NewHTTPMarketplaceClient(config *MarketplaceConfig) (*HTTPMarketplaceClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 10
	}

	return &HTTPMarketplaceClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}, nil
}

// stockResponse is the GET stock body
type stockResponse struct {
	ProductID string          `json:"product_id"`
	Available decimal.Decimal `json:"available"`
}

// adjustRequest is the POST stock adjustment body
type adjustRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// GetStock returns the current available stock for a marketplace product
func (c *HTTPMarketplaceClient) GetStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	if productID == "" {
		return decimal.Zero, ErrMarketplaceInvalidProductID
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	url := fmt.Sprintf("%s/v2/products/%s/stock", c.config.BaseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, classify(marketplacePlatform, "get_stock", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return decimal.Zero, classify(marketplacePlatform, "get_stock", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, classify(marketplacePlatform, "get_stock", resp.StatusCode,
			fmt.Errorf("unexpected response: %s", truncate(body, 256)))
	}

	var stock stockResponse
	if err := json.Unmarshal(body, &stock); err != nil {
		return decimal.Zero, classify(marketplacePlatform, "get_stock", resp.StatusCode, err)
	}
	return stock.Available, nil
}

// AdjustStock applies a relative stock delta to a marketplace product
func (c *HTTPMarketplaceClient) AdjustStock(ctx context.Context, productID string, delta decimal.Decimal) error {
	if productID == "" {
		return ErrMarketplaceInvalidProductID
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(adjustRequest{Delta: delta})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v2/products/%s/stock/adjust", c.config.BaseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(marketplacePlatform, "adjust_stock", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return classify(marketplacePlatform, "adjust_stock", resp.StatusCode,
			fmt.Errorf("unexpected response: %s", truncate(body, 256)))
	}
	return nil
}

func (c *HTTPMarketplaceClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// truncate bounds an error snippet taken from a response body
func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Ensure HTTPMarketplaceClient implements MarketplaceClient
var _ integration.MarketplaceClient = (*HTTPMarketplaceClient)(nil)
