package cache

import (
	"context"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/webhook"
)

// guardEntry is one stored delivery mark with expiration
type guardEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryIdempotencyGuard implements webhook.IdempotencyGuard on a map.
// Suitable for single-instance deployments and tests; marks are lost on
// restart, which the fail-open intake path tolerates.
type InMemoryIdempotencyGuard struct {
	mu        sync.Mutex
	entries   map[string]guardEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyGuard creates a new in-memory guard and starts a
// background goroutine that evicts expired marks
func NewInMemoryIdempotencyGuard() *InMemoryIdempotencyGuard {
	g := &InMemoryIdempotencyGuard{
		entries:  make(map[string]guardEntry),
		stopChan: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.cleanupLoop()

	return g
}

// CheckAndMark atomically marks the delivery as processing if unseen
func (g *InMemoryIdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (webhook.GuardResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, exists := g.entries[deliveryID]; exists && time.Now().Before(e.expiresAt) {
		return webhook.GuardResult{AlreadyDone: e.value == markCompleted}, nil
	}

	g.entries[deliveryID] = guardEntry{
		value:     markProcessing,
		expiresAt: time.Now().Add(webhook.ProcessingTTL),
	}
	return webhook.GuardResult{Proceed: true}, nil
}

// MarkCompleted overwrites the mark as completed with the longer TTL
func (g *InMemoryIdempotencyGuard) MarkCompleted(ctx context.Context, deliveryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[deliveryID] = guardEntry{
		value:     markCompleted,
		expiresAt: time.Now().Add(webhook.CompletedTTL),
	}
	return nil
}

// Clear removes the delivery mark
func (g *InMemoryIdempotencyGuard) Clear(ctx context.Context, deliveryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entries, deliveryID)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (g *InMemoryIdempotencyGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

// Size returns the number of stored marks (for testing/monitoring)
func (g *InMemoryIdempotencyGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// cleanupLoop periodically removes expired marks
func (g *InMemoryIdempotencyGuard) cleanupLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *InMemoryIdempotencyGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for id, e := range g.entries {
		if now.After(e.expiresAt) {
			delete(g.entries, id)
		}
	}
}

// Ensure InMemoryIdempotencyGuard implements IdempotencyGuard
var _ webhook.IdempotencyGuard = (*InMemoryIdempotencyGuard)(nil)
