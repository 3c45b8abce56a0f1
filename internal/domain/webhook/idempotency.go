package webhook

import (
	"context"
	"time"
)

// Idempotency mark TTLs. A key is held for a short window while a delivery
// is in flight, and for a full day once it completed so genuine platform
// redeliveries inside that window are recognized and skipped.
const (
	ProcessingTTL = 30 * time.Minute
	CompletedTTL  = 24 * time.Hour
)

// GuardResult is the outcome of an idempotency check
type GuardResult struct {
	// Proceed is true if this caller won the mark and should process the delivery
	Proceed bool
	// AlreadyDone is true if the delivery already completed processing
	// (as opposed to still being in flight)
	AlreadyDone bool
}

// IdempotencyGuard deduplicates webhook deliveries by their platform-assigned
// delivery ID. CheckAndMark must be a single atomic check-and-set: of two
// concurrent calls for the same delivery ID, exactly one may observe
// Proceed=true.
//
// Callers decide failure semantics. The intake path fails open on guard
// errors: duplicate processing is preferable to dropping a legitimate
// webhook, because downstream mutations are idempotent at the business level.
type IdempotencyGuard interface {
	// CheckAndMark atomically marks the delivery as processing if it was
	// unseen, or reports the existing mark otherwise.
	CheckAndMark(ctx context.Context, deliveryID string) (GuardResult, error)

	// MarkCompleted overwrites the mark as completed with the longer TTL.
	MarkCompleted(ctx context.Context, deliveryID string) error

	// Clear removes the mark so the delivery can be reprocessed. Used only
	// by the administrative retry action.
	Clear(ctx context.Context, deliveryID string) error
}
