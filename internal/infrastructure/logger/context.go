package logger

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is a private type for context keys used by the logger package
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	deliveryIDKey contextKey = "delivery_id"
)

// ContextWithRequestID tags the context with the request ID so query traces
// can report it
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithDeliveryID tags the context with the webhook delivery ID and returns a
// logger carrying it as a field. Intake calls this once per delivery; every
// log line and query trace below it is attributable to the delivery.
func WithDeliveryID(ctx context.Context, logger *zap.Logger, deliveryID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, deliveryIDKey, deliveryID)
	return ctx, logger.With(zap.String("delivery_id", deliveryID))
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetDeliveryID retrieves the webhook delivery ID from context
func GetDeliveryID(ctx context.Context) string {
	if deliveryID, ok := ctx.Value(deliveryIDKey).(string); ok {
		return deliveryID
	}
	return ""
}
