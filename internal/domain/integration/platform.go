package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Platform error classification
// ---------------------------------------------------------------------------

// PlatformError wraps a failed call to an external commerce platform and
// carries its retry classification. Transient failures (network errors,
// timeouts, 5xx, rate limiting) are retried by the queue's backoff policy;
// permanent failures (validation errors, other 4xx) are terminal for a job.
type PlatformError struct {
	Platform   string
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

// Error implements the error interface
func (e *PlatformError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s failed with status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Platform, e.Op, e.Err)
}

// Unwrap returns the wrapped error
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if err is a platform error worth retrying
func IsTransient(err error) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// ---------------------------------------------------------------------------
// External platform client ports
// ---------------------------------------------------------------------------

// MarketplaceClient is the port to the marketplace platform's stock API.
// Implementations must carry a per-request timeout so a hung call cannot
// starve a worker's concurrency slot.
type MarketplaceClient interface {
	// GetStock returns the current available stock for a marketplace product
	GetStock(ctx context.Context, productID string) (decimal.Decimal, error)

	// AdjustStock applies a relative stock delta to a marketplace product
	AdjustStock(ctx context.Context, productID string, delta decimal.Decimal) error
}

// StorefrontClient is the port to the storefront platform's inventory API
type StorefrontClient interface {
	// PushInventoryLevel sets the available quantity of a storefront
	// inventory item to an absolute value
	PushInventoryLevel(ctx context.Context, inventoryItemID string, quantity decimal.Decimal) error
}
