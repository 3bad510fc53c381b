package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/store"
)

// CompletionCoordinator guarantees that at most one successful
// RequestCompletion call reaches the gateway per session, and that
// repeated or concurrent completion attempts converge on the same
// TestResult.
//
// The service does not make RequestCompletion idempotent itself: a
// second call for an already-completed session fails with a
// distinguishable condition. Idempotency is synthesized here by
// treating that condition as success and collapsing concurrent
// duplicates behind a single lock.
//
// The completed set and result cache are process-lifetime only. After a
// restart they are empty, so a resumed session that was actually
// completed server-side is reconciled through the "already completed"
// error path rather than the cache.
type CompletionCoordinator struct {
	gw        gateway.SessionGateway
	store     store.ProgressStore
	publisher events.EventPublisher
	logger    *slog.Logger

	// Single lock scoped to the whole coordinator. Completion is a rare,
	// user-paced operation; per-session lock sharding buys nothing here.
	mu        sync.Mutex
	completed map[string]bool
	results   map[string]*models.TestResult
}

func NewCompletionCoordinator(gw gateway.SessionGateway, progressStore store.ProgressStore, publisher events.EventPublisher, logger *slog.Logger) *CompletionCoordinator {
	return &CompletionCoordinator{
		gw:        gw,
		store:     progressStore,
		publisher: publisher,
		logger:    logger,
		completed: make(map[string]bool),
		results:   make(map[string]*models.TestResult),
	}
}

// Complete finalizes the session exactly once and returns its result.
// Safe to call repeatedly and concurrently; every caller receives the
// same result. On failure the session stays finalizable and a retry is
// safe: either the request was never accepted (retry is a normal first
// attempt) or it was accepted (the retry takes the already-completed
// branch).
func (c *CompletionCoordinator) Complete(ctx context.Context, sessionID string) (*models.TestResult, error) {
	// Fast path: a result we already hold needs no network at all.
	if result := c.cachedResult(sessionID); result != nil {
		return result, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: a concurrent call may have finished while this one
	// waited for the lock.
	if result := c.results[sessionID]; result != nil {
		return result, nil
	}

	if !c.completed[sessionID] {
		if err := c.gw.RequestCompletion(ctx, sessionID); err != nil {
			if !gateway.IsAlreadyCompleted(err) {
				return nil, fmt.Errorf("failed to request completion: %w", err)
			}
			// A prior request was accepted server-side even though this
			// client never observed the success (e.g. response lost after
			// a timeout). Reconcile by treating it as completed.
			c.logger.Info("Session already completed on server, reconciling",
				"session_id", sessionID)
		}
		c.completed[sessionID] = true
	}

	result, err := c.gw.GetResults(ctx, sessionID)
	if err != nil {
		// The session is completed server-side; only the result fetch
		// failed. Retrying goes straight to GetResults.
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}
	c.results[sessionID] = result

	if err := c.store.ClearSession(ctx, sessionID); err != nil {
		c.logger.Warn("Failed to clear local progress after completion",
			"session_id", sessionID, "error", err)
	}

	c.publish(ctx, events.NewSessionEvent(events.EventSessionCompleted, events.SessionCompletedEvent{
		SessionID:      sessionID,
		Score:          result.Score,
		TotalPoints:    result.TotalPoints,
		DurationMillis: result.DurationMillis,
	}))

	c.logger.Info("Session completed",
		"session_id", sessionID,
		"score", result.Score,
		"total_points", result.TotalPoints)

	return result, nil
}

// IsCompleted reports whether the coordinator already knows the session
// to be finalized. Never authoritative after a restart.
func (c *CompletionCoordinator) IsCompleted(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[sessionID]
}

func (c *CompletionCoordinator) cachedResult(sessionID string) *models.TestResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[sessionID]
}

func (c *CompletionCoordinator) publish(ctx context.Context, event *events.SessionEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSessionEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to publish session event",
			"event_type", event.Type, "error", err)
	}
}
