package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/store"
)

func newTestScanner(gw gateway.SessionGateway, progressStore store.ProgressStore) (*RecoveryScanner, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	return NewRecoveryScanner(gw, progressStore, publisher, logger), publisher
}

func TestRecoveryScanner_ListResumable(t *testing.T) {
	mathSession := threeQuestionSession("sess-math")
	mathSession.TestID = "math-201"
	goSession := threeQuestionSession("sess-go")

	gw := newFakeGateway(mathSession, goSession)
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-math"))
	require.NoError(t, progressStore.SaveProgress(ctx, "sess-go", 2, 5*time.Minute))
	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-go"))

	scanner, _ := newTestScanner(gw, progressStore)

	t.Run("ScopedToRequestedTest", func(t *testing.T) {
		resumable, err := scanner.ListResumable(ctx, "go-basics")
		require.NoError(t, err)
		require.NotNil(t, resumable)
		assert.Equal(t, "sess-go", resumable.Session.ID)
		assert.Equal(t, 2, resumable.QuestionIndex)
		assert.Equal(t, 5*time.Minute, resumable.ElapsedTime)

		resumable, err = scanner.ListResumable(ctx, "math-201")
		require.NoError(t, err)
		require.NotNil(t, resumable)
		assert.Equal(t, "sess-math", resumable.Session.ID)
		assert.Equal(t, 0, resumable.QuestionIndex, "unsaved progress defaults to the first question")
	})

	t.Run("NoCandidateForUnknownTest", func(t *testing.T) {
		resumable, err := scanner.ListResumable(ctx, "history-101")
		require.NoError(t, err)
		assert.Nil(t, resumable)
	})
}

func TestRecoveryScanner_SkipsUnreachableSessions(t *testing.T) {
	// sess-gone is marked incomplete locally but no longer exists on the
	// service. The scan must skip it and still find sess-go.
	goSession := threeQuestionSession("sess-go")
	gw := newFakeGateway(goSession)
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-go"))
	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-gone"))

	scanner, _ := newTestScanner(gw, progressStore)

	resumable, err := scanner.ListResumable(ctx, "go-basics")
	require.NoError(t, err)
	require.NotNil(t, resumable)
	assert.Equal(t, "sess-go", resumable.Session.ID)
}

func TestRecoveryScanner_MostRecentlyMarkedWins(t *testing.T) {
	older := threeQuestionSession("sess-older")
	newer := threeQuestionSession("sess-newer")
	gw := newFakeGateway(older, newer)
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-older"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-newer"))

	scanner, _ := newTestScanner(gw, progressStore)

	resumable, err := scanner.ListResumable(ctx, "go-basics")
	require.NoError(t, err)
	require.NotNil(t, resumable)
	assert.Equal(t, "sess-newer", resumable.Session.ID)
}

func TestRecoveryScanner_Discard(t *testing.T) {
	goSession := threeQuestionSession("sess-go")
	gw := newFakeGateway(goSession)
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, progressStore.SaveProgress(ctx, "sess-go", 1, time.Minute))
	require.NoError(t, progressStore.MarkIncomplete(ctx, "sess-go"))
	require.NoError(t, progressStore.SaveAnswerSnapshot(ctx, "sess-go", map[string]models.Answer{
		"q1": {QuestionID: "q1", SelectedOptions: []int{0}},
	}))

	scanner, publisher := newTestScanner(gw, progressStore)
	require.NoError(t, scanner.Discard(ctx, "sess-go"))

	resumable, err := scanner.ListResumable(ctx, "go-basics")
	require.NoError(t, err)
	assert.Nil(t, resumable)

	_, found, err := progressStore.GetProgress(ctx, "sess-go")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = progressStore.GetAnswerSnapshot(ctx, "sess-go")
	require.NoError(t, err)
	assert.False(t, found)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSessionAbandoned, published[0].Type)

	// Discarding clears the way for a fresh attempt at the same test.
	orch, _ := newTestOrchestrator(gw, progressStore)
	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))
	assert.Equal(t, 0, orch.QuestionIndex())
}
