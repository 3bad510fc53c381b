package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/store"
	"github.com/skillcheck/session-engine/internal/validator"
)

// fakeGateway is an in-memory SessionGateway for service tests. All
// fields are guarded by mu so concurrent completion tests stay race
// free.
type fakeGateway struct {
	mu sync.Mutex

	sessions map[string]*models.Session
	result   *models.TestResult

	startErr      error
	getErr        error
	saveErr       error
	completionErr error
	resultsErr    error

	// completionDelay widens the window in which concurrent callers pile
	// up on the coordinator lock.
	completionDelay time.Duration

	startCalls      int
	saveCalls       int
	completionCalls int
	resultsCalls    int
	savedAnswers    []models.Answer
}

func newFakeGateway(sessions ...*models.Session) *fakeGateway {
	g := &fakeGateway{sessions: make(map[string]*models.Session)}
	for _, s := range sessions {
		g.sessions[s.ID] = s
	}
	return g
}

func (g *fakeGateway) StartSession(ctx context.Context, testID, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalls++
	if g.startErr != nil {
		return "", g.startErr
	}
	for id, s := range g.sessions {
		if s.TestID == testID {
			return id, nil
		}
	}
	return "", gateway.NewError(gateway.CodeNotFound, 404, "test not found")
}

func (g *fakeGateway) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, gateway.NewError(gateway.CodeNotFound, 404, "session not found")
	}
	// Fresh copy per fetch, like a real wire round trip.
	cp := *session
	cp.Answers = make(map[string]models.Answer, len(session.Answers))
	for id, a := range session.Answers {
		cp.Answers[id] = a
	}
	return &cp, nil
}

func (g *fakeGateway) SaveAnswer(ctx context.Context, sessionID string, answer models.Answer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveCalls++
	if g.saveErr != nil {
		return g.saveErr
	}
	g.savedAnswers = append(g.savedAnswers, answer)
	return nil
}

func (g *fakeGateway) RequestCompletion(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	g.completionCalls++
	err := g.completionErr
	delay := g.completionDelay
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (g *fakeGateway) GetResults(ctx context.Context, sessionID string) (*models.TestResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resultsCalls++
	if g.resultsErr != nil {
		return nil, g.resultsErr
	}
	if g.result != nil {
		return g.result, nil
	}
	return &models.TestResult{SessionID: sessionID, Score: 15, TotalPoints: 20}, nil
}

func (g *fakeGateway) counts() (start, save, completion, results int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startCalls, g.saveCalls, g.completionCalls, g.resultsCalls
}

func threeQuestionSession(id string) *models.Session {
	return &models.Session{
		ID:     id,
		TestID: "go-basics",
		Questions: []models.Question{
			{
				ID:             "q1",
				Text:           "Which keyword declares a variable?",
				Type:           models.SingleChoice,
				Options:        []string{"var", "let", "dim"},
				CorrectOptions: []int{0},
				Points:         5,
				Explanation:    "Go uses var (or := inside functions).",
			},
			{
				ID:             "q2",
				Text:           "Which of these are built-in types?",
				Type:           models.MultipleChoice,
				Options:        []string{"rune", "decimal", "complex128"},
				CorrectOptions: []int{0, 2},
				Points:         10,
				Explanation:    "rune and complex128 are built in; decimal is not.",
			},
			{
				ID:     "q3",
				Text:   "Explain what a goroutine is.",
				Type:   models.FreeText,
				Points: 5,
			},
		},
		Answers:   make(map[string]models.Answer),
		StartedAt: time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestOrchestrator(gw gateway.SessionGateway, progressStore store.ProgressStore) (*Orchestrator, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	completer := NewCompletionCoordinator(gw, progressStore, publisher, logger)
	return NewOrchestrator(gw, progressStore, completer, publisher, logger, validator.New()), publisher
}

func TestOrchestrator_FullRun(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	progressStore := store.NewMemoryStore()
	orch, publisher := newTestOrchestrator(gw, progressStore)
	ctx := context.Background()

	err := orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"})
	require.NoError(t, err)
	assert.Equal(t, StateActive, orch.State())
	assert.Equal(t, 0, orch.QuestionIndex())

	// q1 correct
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{0}}))
	outcome, err := orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Correct)
	assert.True(t, outcome.Advanced)
	assert.Equal(t, 1, orch.QuestionIndex())

	// q2 correct multi-select
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{2, 0}}))
	outcome, err = orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Correct)
	assert.Equal(t, 2, orch.QuestionIndex())

	// q3 free text completes the session
	require.NoError(t, orch.SetDraft(models.Answer{TextAnswer: "a lightweight thread"}))
	outcome, err = orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, StateCompleted, orch.State())

	_, saves, completions, _ := gw.counts()
	assert.Equal(t, 3, saves)
	assert.Equal(t, 1, completions)

	// Completion clears all local bookkeeping for the session.
	ids, err := progressStore.IncompleteSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, found, err := progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)

	types := make([]events.EventType, 0)
	for _, ev := range publisher.GetPublishedEvents() {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, events.EventSessionStarted)
	assert.Contains(t, types, events.EventSessionCompleted)
}

func TestOrchestrator_RunWithIncorrectAnswer(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	gw.result = &models.TestResult{
		SessionID:   "sess-1",
		Score:       2,
		TotalPoints: 3,
		QuestionResults: []models.QuestionResult{
			{QuestionID: "q1", IsCorrect: true, PointsEarned: 1},
			{QuestionID: "q2", IsCorrect: false, PointsEarned: 0},
			{QuestionID: "q3", IsCorrect: true, PointsEarned: 1},
		},
	}
	progressStore := store.NewMemoryStore()
	orch, _ := newTestOrchestrator(gw, progressStore)
	ctx := context.Background()

	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))

	// Q1 correct, cursor and persisted index move to 1.
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{0}}))
	_, err := orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	saved, _, err := progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	// Q2 wrong, cursor stays at 1 until the explanation is acknowledged.
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{1}}))
	outcome, err := orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.False(t, outcome.Correct)
	assert.Equal(t, 1, orch.QuestionIndex())

	_, err = orch.AcknowledgeExplanation(ctx)
	require.NoError(t, err)
	saved, _, err = progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	// Q3 triggers completion.
	require.NoError(t, orch.SetDraft(models.Answer{TextAnswer: "a lightweight thread"}))
	outcome, err = orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Completed)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 2, outcome.Result.Score)
	assert.Equal(t, 3, outcome.Result.TotalPoints)
	assert.Len(t, outcome.Result.QuestionResults, 3)

	// Local bookkeeping for the session is gone.
	_, found, err := progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
	ids, err := progressStore.IncompleteSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOrchestrator_ResumeAtSavedPosition(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	first, _ := newTestOrchestrator(gw, progressStore)
	require.NoError(t, first.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))
	require.NoError(t, first.SetDraft(models.Answer{SelectedOptions: []int{0}}))
	_, err := first.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.QuestionIndex())

	// Simulate a restart with a fresh orchestrator on the same store.
	second, publisher := newTestOrchestrator(gw, progressStore)
	require.NoError(t, second.Resume(ctx, "sess-1"))
	assert.Equal(t, StateActive, second.State())
	assert.Equal(t, 1, second.QuestionIndex())

	published := publisher.GetPublishedEvents()
	require.NotEmpty(t, published)
	assert.Equal(t, events.EventSessionResumed, published[0].Type)

	t.Run("SavedIndexClampedToLastQuestion", func(t *testing.T) {
		require.NoError(t, progressStore.SaveProgress(ctx, "sess-1", 99, 0))
		third, _ := newTestOrchestrator(gw, progressStore)
		require.NoError(t, third.Resume(ctx, "sess-1"))
		assert.Equal(t, 2, third.QuestionIndex())
	})
}

func TestOrchestrator_BackwardNavigationNeverRegressesProgress(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	progressStore := store.NewMemoryStore()
	orch, _ := newTestOrchestrator(gw, progressStore)
	ctx := context.Background()

	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{0}}))
	_, err := orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{0, 2}}))
	_, err = orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, orch.QuestionIndex())

	saved, found, err := progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, saved)

	// Walk back to the start, then forward again over answered ground.
	require.NoError(t, orch.Previous())
	require.NoError(t, orch.Previous())
	assert.Equal(t, 0, orch.QuestionIndex())

	saved, _, err = progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved, "backward navigation must not move the saved position")

	// Re-answering an earlier question keeps the old draft available and
	// still does not lower the persisted high-water mark.
	assert.Equal(t, []int{0}, orch.Draft().SelectedOptions)
	_, err = orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, orch.QuestionIndex())

	saved, _, err = progressStore.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	t.Run("PreviousAtFirstQuestionIsANoOp", func(t *testing.T) {
		fresh, _ := newTestOrchestrator(newFakeGateway(threeQuestionSession("sess-2")), store.NewMemoryStore())
		require.NoError(t, fresh.Resume(context.Background(), "sess-2"))
		require.NoError(t, fresh.Previous())
		assert.Equal(t, 0, fresh.QuestionIndex())
	})
}

func TestOrchestrator_ExplanationGate(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	orch, _ := newTestOrchestrator(gw, store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))

	require.NoError(t, orch.SetDraft(models.Answer{SelectedOptions: []int{1}}))
	outcome, err := orch.SubmitAnswer(ctx)
	require.NoError(t, err)
	assert.False(t, outcome.Correct)
	assert.False(t, outcome.Advanced)
	assert.Equal(t, "Go uses var (or := inside functions).", outcome.Explanation)
	assert.True(t, orch.ExplanationPending())
	assert.Equal(t, 0, orch.QuestionIndex())

	// The wrong answer was still recorded remotely.
	_, saves, _, _ := gw.counts()
	assert.Equal(t, 1, saves)

	_, err = orch.SubmitAnswer(ctx)
	assert.ErrorIs(t, err, ErrExplanationPending)

	outcome, err = orch.AcknowledgeExplanation(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Advanced)
	assert.Equal(t, 1, orch.QuestionIndex())
	assert.False(t, orch.ExplanationPending())

	_, err = orch.AcknowledgeExplanation(ctx)
	assert.ErrorIs(t, err, ErrNoExplanation)
}

func TestOrchestrator_EmptySessionFails(t *testing.T) {
	empty := &models.Session{ID: "sess-empty", TestID: "go-basics", Answers: make(map[string]models.Answer)}
	orch, _ := newTestOrchestrator(newFakeGateway(empty), store.NewMemoryStore())

	err := orch.StartNew(context.Background(), &StartSessionRequest{TestID: "go-basics", UserID: "user-7"})
	assert.ErrorIs(t, err, ErrSessionEmpty)
	assert.Equal(t, StateFailed, orch.State())

	_, err = orch.SubmitAnswer(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestOrchestrator_StartValidation(t *testing.T) {
	orch, _ := newTestOrchestrator(newFakeGateway(), store.NewMemoryStore())

	err := orch.StartNew(context.Background(), &StartSessionRequest{TestID: "", UserID: "user-7"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestOrchestrator_UnavailableGatewayKeepsLoading(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	gw.getErr = gateway.NewError(gateway.CodeUnavailable, 503, "service unavailable")
	orch, _ := newTestOrchestrator(gw, store.NewMemoryStore())
	ctx := context.Background()

	err := orch.Resume(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, gateway.IsRetryable(err))
	assert.Equal(t, StateLoading, orch.State())

	// The retry path is the same call again once the service is back.
	gw.getErr = nil
	require.NoError(t, orch.Resume(ctx, "sess-1"))
	assert.Equal(t, StateActive, orch.State())
}

func TestOrchestrator_SnapshotRestoresMultiSelect(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	progressStore := store.NewMemoryStore()
	ctx := context.Background()

	first, _ := newTestOrchestrator(gw, progressStore)
	require.NoError(t, first.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))
	require.NoError(t, first.SetDraft(models.Answer{SelectedOptions: []int{0}}))
	_, err := first.SubmitAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, first.SetDraft(models.Answer{SelectedOptions: []int{0, 2}}))
	_, err = first.SubmitAnswer(ctx)
	require.NoError(t, err)

	// The wire narrows multi-select to one option, so the server copy of
	// q2's answer is lossy. The snapshot restores the full selection.
	second, _ := newTestOrchestrator(gw, progressStore)
	require.NoError(t, second.Resume(ctx, "sess-1"))

	require.NoError(t, second.Previous())
	assert.Equal(t, 1, second.QuestionIndex())
	assert.ElementsMatch(t, []int{0, 2}, second.Draft().SelectedOptions)
}

func TestOrchestrator_ElapsedTimeAcrossSuspend(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	progressStore := store.NewMemoryStore()
	orch, _ := newTestOrchestrator(gw, progressStore)
	ctx := context.Background()

	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return current }

	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))

	current = current.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, orch.ElapsedTime())

	orch.Suspend(ctx)
	current = current.Add(10 * time.Minute)
	assert.Equal(t, 90*time.Second, orch.ElapsedTime(), "suspended time must not count")

	orch.ResumeClock()
	current = current.Add(30 * time.Second)
	assert.Equal(t, 2*time.Minute, orch.ElapsedTime())

	// Suspend persisted the elapsed time for resumption.
	saved, found, err := progressStore.GetElapsedTime(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 90*time.Second, saved)
}

func TestOrchestrator_CompleteRetryAfterResultsFailure(t *testing.T) {
	gw := newFakeGateway(threeQuestionSession("sess-1"))
	gw.resultsErr = gateway.NewError(gateway.CodeUnavailable, 503, "service unavailable")
	orch, _ := newTestOrchestrator(gw, store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, orch.StartNew(ctx, &StartSessionRequest{TestID: "go-basics", UserID: "user-7"}))
	for _, draft := range []models.Answer{
		{SelectedOptions: []int{0}},
		{SelectedOptions: []int{0, 2}},
		{TextAnswer: "a lightweight thread"},
	} {
		require.NoError(t, orch.SetDraft(draft))
		_, err := orch.SubmitAnswer(ctx)
		if orch.State() == StateActive {
			require.NoError(t, err)
		} else {
			// The final submission fails on the result fetch and leaves
			// the session completing.
			require.Error(t, err)
		}
	}
	require.Equal(t, StateCompleting, orch.State())

	_, err := orch.SubmitAnswer(ctx)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	gw.mu.Lock()
	gw.resultsErr = nil
	gw.mu.Unlock()

	result, err := orch.Complete(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StateCompleted, orch.State())

	// Completion itself was requested exactly once across the retries.
	_, _, completions, _ := gw.counts()
	assert.Equal(t, 1, completions)

	t.Run("CompleteOnActiveSessionIsRejected", func(t *testing.T) {
		fresh, _ := newTestOrchestrator(newFakeGateway(threeQuestionSession("sess-2")), store.NewMemoryStore())
		require.NoError(t, fresh.Resume(ctx, "sess-2"))
		_, err := fresh.Complete(ctx)
		assert.ErrorIs(t, err, ErrNotCompleting)
	})
}
