package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/store"
)

func newTestCoordinator(gw gateway.SessionGateway, progressStore store.ProgressStore) (*CompletionCoordinator, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	return NewCompletionCoordinator(gw, progressStore, publisher, logger), publisher
}

func TestCompletionCoordinator_RepeatedCompleteIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.result = &models.TestResult{SessionID: "sess-1", Score: 12, TotalPoints: 20}
	coordinator, publisher := newTestCoordinator(gw, store.NewMemoryStore())
	ctx := context.Background()

	first, err := coordinator.Complete(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := coordinator.Complete(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	third, err := coordinator.Complete(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, first, third)

	_, _, completions, results := gw.counts()
	assert.Equal(t, 1, completions, "only one completion request may reach the service")
	assert.Equal(t, 1, results, "cached result must not be re-fetched")
	assert.True(t, coordinator.IsCompleted("sess-1"))

	// One completed event, despite three Complete calls.
	completed := 0
	for _, ev := range publisher.GetPublishedEvents() {
		if ev.Type == events.EventSessionCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestCompletionCoordinator_ConcurrentCallersCollapse(t *testing.T) {
	gw := newFakeGateway()
	gw.result = &models.TestResult{SessionID: "sess-1", Score: 18, TotalPoints: 20}
	gw.completionDelay = 20 * time.Millisecond
	coordinator, _ := newTestCoordinator(gw, store.NewMemoryStore())

	const callers = 8
	resultsCh := make(chan *models.TestResult, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := coordinator.Complete(context.Background(), "sess-1")
			resultsCh <- result
			errs <- err
		}()
	}
	wg.Wait()
	close(resultsCh)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	var first *models.TestResult
	for result := range resultsCh {
		require.NotNil(t, result)
		if first == nil {
			first = result
		}
		assert.Same(t, first, result, "all concurrent callers must observe the same result")
	}

	_, _, completions, _ := gw.counts()
	assert.Equal(t, 1, completions)
}

func TestCompletionCoordinator_ReconcilesAlreadyCompleted(t *testing.T) {
	// A previous attempt was accepted server-side but this process never
	// saw the success, e.g. a restart after a lost response.
	gw := newFakeGateway()
	gw.completionErr = gateway.NewError(gateway.CodeAlreadyCompleted, 409, "session already completed")
	gw.result = &models.TestResult{SessionID: "sess-1", Score: 9, TotalPoints: 20}
	progressStore := store.NewMemoryStore()
	require.NoError(t, progressStore.MarkIncomplete(context.Background(), "sess-1"))

	coordinator, _ := newTestCoordinator(gw, progressStore)

	result, err := coordinator.Complete(context.Background(), "sess-1")
	require.NoError(t, err, "already completed must be reconciled as success")
	require.NotNil(t, result)
	assert.Equal(t, 9, result.Score)

	// Reconciliation also clears the stale local bookkeeping.
	ids, err := progressStore.IncompleteSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCompletionCoordinator_OtherCompletionErrorsSurface(t *testing.T) {
	gw := newFakeGateway()
	gw.completionErr = gateway.NewError(gateway.CodeUnavailable, 503, "service unavailable")
	coordinator, publisher := newTestCoordinator(gw, store.NewMemoryStore())
	ctx := context.Background()

	_, err := coordinator.Complete(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, gateway.IsRetryable(err))
	assert.False(t, coordinator.IsCompleted("sess-1"))
	assert.Empty(t, publisher.GetPublishedEvents())

	// Once the service recovers the same call path finishes the session.
	gw.mu.Lock()
	gw.completionErr = nil
	gw.mu.Unlock()

	result, err := coordinator.Complete(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	_, _, completions, _ := gw.counts()
	assert.Equal(t, 2, completions)
}

func TestCompletionCoordinator_ResultFetchRetrySkipsCompletion(t *testing.T) {
	gw := newFakeGateway()
	gw.resultsErr = gateway.NewError(gateway.CodeUnavailable, 503, "service unavailable")
	coordinator, _ := newTestCoordinator(gw, store.NewMemoryStore())
	ctx := context.Background()

	_, err := coordinator.Complete(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, coordinator.IsCompleted("sess-1"), "completion was accepted, only the fetch failed")

	gw.mu.Lock()
	gw.resultsErr = nil
	gw.mu.Unlock()

	result, err := coordinator.Complete(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	_, _, completions, results := gw.counts()
	assert.Equal(t, 1, completions, "the retry must go straight to the result fetch")
	assert.Equal(t, 2, results)
}
