package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/webhook"
)

// ErrInvalidPayload marks a job payload that cannot be decoded. Retrying
// cannot fix a malformed payload, so workers treat it as permanent.
var ErrInvalidPayload = errors.New("reconcile: invalid job payload")

// Op identifies the cross-platform mutation a job performs
type Op string

const (
	// OpStockDecrement reduces marketplace stock after a storefront sale
	OpStockDecrement Op = "stock_decrement"
	// OpStockRestore restores marketplace stock after a cancellation
	OpStockRestore Op = "stock_restore"
	// OpInventoryPush pushes an absolute storefront quantity to the marketplace
	OpInventoryPush Op = "inventory_push"
)

// Job results recorded on completion
const (
	ResultApplied   = "applied"
	ResultClamped   = "applied_clamped"
	ResultNoMapping = "no_mapping"
	ResultNoop      = "noop"
)

// TaskPayload is the structured payload carried by a sync job. It records
// what was known at enqueue time; workers re-resolve mappings at processing
// time and never trust identifiers beyond the SKU and source event.
type TaskPayload struct {
	DeliveryID      string          `json:"delivery_id"`
	Source          webhook.Source  `json:"source"`
	Topic           string          `json:"topic"`
	Op              Op              `json:"op"`
	OrderID         string          `json:"order_id,omitempty"`
	SKU             string          `json:"sku,omitempty"`
	InventoryItemID string          `json:"inventory_item_id,omitempty"`
	VariantID       string          `json:"variant_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// Marshal encodes the payload for queue storage
func (p TaskPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalTaskPayload decodes a job payload, wrapping decode failures as
// ErrInvalidPayload
func UnmarshalTaskPayload(data []byte) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TaskPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Op == "" {
		return TaskPayload{}, fmt.Errorf("%w: missing op", ErrInvalidPayload)
	}
	return p, nil
}
