package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/store"
	"github.com/skillcheck/session-engine/internal/validator"
)

type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateActive     SessionState = "active"
	StateCompleting SessionState = "completing"
	StateCompleted  SessionState = "completed"
	StateFailed     SessionState = "failed"
)

type StartSessionRequest struct {
	TestID string `json:"test_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

// AnswerOutcome describes what happened after an answer submission or
// explanation acknowledgement.
type AnswerOutcome struct {
	// Correct is the advisory local judgement of the submitted answer.
	Correct bool `json:"correct"`
	// Explanation is set when the answer was judged incorrect and the
	// cursor stays in place until the explanation is acknowledged.
	Explanation string `json:"explanation,omitempty"`
	// Advanced reports whether the cursor moved forward.
	Advanced bool `json:"advanced"`
	// Completed reports that the last question was passed and the
	// session was finalized.
	Completed bool `json:"completed"`
	// Result is the graded result, set only when Completed is true.
	Result *models.TestResult `json:"result,omitempty"`
}

// Orchestrator owns the state of one test-taking session: the loaded
// session, the question cursor, and the current answer draft. It drives
// state transitions by calling the gateway and persisting progress
// through the store.
//
// The orchestrator is designed for a single logical caller at a time;
// it carries no internal locking. The only genuinely concurrent path,
// completion, is serialized by the CompletionCoordinator.
type Orchestrator struct {
	gw        gateway.SessionGateway
	store     store.ProgressStore
	completer *CompletionCoordinator
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator

	// now is swappable for elapsed-time tests.
	now func() time.Time

	state              SessionState
	session            *models.Session
	questionIndex      int
	highWater          int
	draft              models.Answer
	pendingExplanation bool
	elapsedBase        time.Duration
	activeSince        time.Time
	result             *models.TestResult
}

func NewOrchestrator(
	gw gateway.SessionGateway,
	progressStore store.ProgressStore,
	completer *CompletionCoordinator,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) *Orchestrator {
	return &Orchestrator{
		gw:        gw,
		store:     progressStore,
		completer: completer,
		publisher: publisher,
		logger:    logger,
		validator: v,
		now:       time.Now,
		state:     StateLoading,
	}
}

// ===== ACCESSORS =====

func (o *Orchestrator) State() SessionState        { return o.state }
func (o *Orchestrator) Session() *models.Session   { return o.session }
func (o *Orchestrator) QuestionIndex() int         { return o.questionIndex }
func (o *Orchestrator) Result() *models.TestResult { return o.result }
func (o *Orchestrator) Draft() models.Answer       { return o.draft }

// ExplanationPending reports whether the user must acknowledge an
// explanation before the cursor can advance.
func (o *Orchestrator) ExplanationPending() bool { return o.pendingExplanation }

// CurrentQuestion returns the question under the cursor.
func (o *Orchestrator) CurrentQuestion() (models.Question, error) {
	if o.session == nil {
		return models.Question{}, ErrSessionNotLoaded
	}
	q, ok := o.session.QuestionByIndex(o.questionIndex)
	if !ok {
		return models.Question{}, ErrNoCurrentQuestion
	}
	return q, nil
}

// ElapsedTime returns the accumulated active duration of the session.
func (o *Orchestrator) ElapsedTime() time.Duration {
	return o.elapsed()
}

// ===== LIFECYCLE =====

// StartNew creates a fresh session for the given test and loads it.
func (o *Orchestrator) StartNew(ctx context.Context, req *StartSessionRequest) error {
	if err := o.validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	o.logger.Info("Starting test session", "test_id", req.TestID, "user_id", req.UserID)

	sessionID, err := o.gw.StartSession(ctx, req.TestID, req.UserID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// Register the attempt before the first answer so it is discoverable
	// by recovery even if the process dies immediately.
	if err := o.store.MarkIncomplete(ctx, sessionID); err != nil {
		o.logger.Warn("Failed to mark session incomplete", "session_id", sessionID, "error", err)
	}

	if err := o.load(ctx, sessionID, false); err != nil {
		return err
	}

	o.publish(ctx, events.NewSessionEvent(events.EventSessionStarted, events.SessionStartedEvent{
		SessionID: sessionID,
		TestID:    req.TestID,
		UserID:    req.UserID,
	}))
	return nil
}

// Resume loads an existing session and positions the cursor at the
// furthest persisted point.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	o.logger.Info("Resuming test session", "session_id", sessionID)

	if err := o.load(ctx, sessionID, true); err != nil {
		return err
	}

	o.publish(ctx, events.NewSessionEvent(events.EventSessionResumed, events.SessionResumedEvent{
		SessionID:     sessionID,
		TestID:        o.session.TestID,
		QuestionIndex: o.questionIndex,
	}))
	return nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string, resuming bool) error {
	o.state = StateLoading

	session, err := o.gw.GetSession(ctx, sessionID)
	if err != nil {
		// Transient failure: state stays Loading so a retry re-enters
		// this same step.
		return fmt.Errorf("failed to fetch session: %w", err)
	}
	if len(session.Questions) == 0 {
		o.state = StateFailed
		return ErrSessionEmpty
	}
	if session.Answers == nil {
		session.Answers = make(map[string]models.Answer)
	}

	// The server's answers are narrowed to one option per question; the
	// local snapshot restores full multi-select fidelity where present.
	if snapshot, ok, err := o.store.GetAnswerSnapshot(ctx, sessionID); err != nil {
		o.logger.Warn("Failed to read answer snapshot", "session_id", sessionID, "error", err)
	} else if ok {
		for questionID, answer := range snapshot {
			session.Answers[questionID] = answer
		}
	}

	o.session = session

	index := 0
	if resuming {
		saved, found, err := o.store.GetProgress(ctx, sessionID)
		if err != nil {
			o.logger.Warn("Failed to read saved progress", "session_id", sessionID, "error", err)
		} else if found {
			index = saved
		}
		if index < 0 {
			index = 0
		}
		if index > len(session.Questions)-1 {
			index = len(session.Questions) - 1
		}

		if elapsed, found, err := o.store.GetElapsedTime(ctx, sessionID); err != nil {
			o.logger.Warn("Failed to read saved elapsed time", "session_id", sessionID, "error", err)
		} else if found {
			o.elapsedBase = elapsed
		}
	}

	o.questionIndex = index
	o.highWater = index
	o.pendingExplanation = false
	o.result = nil
	o.activeSince = o.now()
	o.hydrateDraft()
	o.state = StateActive

	o.logger.Info("Session loaded",
		"session_id", sessionID,
		"test_id", session.TestID,
		"questions", len(session.Questions),
		"question_index", index,
		"resuming", resuming)
	return nil
}

// ===== ANSWERING =====

// SetDraft replaces the in-memory answer draft for the current question.
func (o *Orchestrator) SetDraft(answer models.Answer) error {
	question, err := o.CurrentQuestion()
	if err != nil {
		return err
	}
	answer.QuestionID = question.ID
	o.draft = answer
	return nil
}

// SubmitAnswer sends the current draft to the service, judges it locally
// for UI feedback, and advances the cursor when advance-worthy. A locally
// incorrect answer keeps the cursor in place until the explanation is
// acknowledged.
func (o *Orchestrator) SubmitAnswer(ctx context.Context) (*AnswerOutcome, error) {
	if o.state != StateActive {
		return nil, ErrSessionNotActive
	}
	if o.pendingExplanation {
		return nil, ErrExplanationPending
	}

	question, err := o.CurrentQuestion()
	if err != nil {
		return nil, err
	}

	answer := o.draft
	answer.QuestionID = question.ID

	if err := o.gw.SaveAnswer(ctx, o.session.ID, answer); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	o.session.Answers[question.ID] = answer
	if err := o.store.SaveAnswerSnapshot(ctx, o.session.ID, o.session.Answers); err != nil {
		// Local persistence failure degrades resumability only; the
		// in-memory state stays authoritative for this run.
		o.logger.Warn("Failed to snapshot answers", "session_id", o.session.ID, "error", err)
	}

	if !JudgeLocally(question, answer) {
		o.pendingExplanation = true
		o.logger.Info("Answer judged incorrect locally",
			"session_id", o.session.ID,
			"question_id", question.ID)
		return &AnswerOutcome{Correct: false, Explanation: question.Explanation}, nil
	}

	return o.advance(ctx, true)
}

// AcknowledgeExplanation advances past a locally incorrect answer after
// the user has seen its explanation.
func (o *Orchestrator) AcknowledgeExplanation(ctx context.Context) (*AnswerOutcome, error) {
	if o.state != StateActive {
		return nil, ErrSessionNotActive
	}
	if !o.pendingExplanation {
		return nil, ErrNoExplanation
	}

	o.pendingExplanation = false
	return o.advance(ctx, false)
}

// Previous moves the cursor back one question and rehydrates the draft
// from the stored answer. Backward excursions are never persisted:
// resumption always resumes at the furthest point reached.
func (o *Orchestrator) Previous() error {
	if o.state != StateActive {
		return ErrSessionNotActive
	}
	if o.questionIndex == 0 {
		return nil
	}
	o.questionIndex--
	o.pendingExplanation = false
	o.hydrateDraft()
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, correct bool) (*AnswerOutcome, error) {
	o.questionIndex++

	if o.questionIndex >= len(o.session.Questions) {
		o.state = StateCompleting
		result, err := o.finalize(ctx)
		if err != nil {
			// Stay in Completing; Complete is the retry entry point.
			return nil, err
		}
		return &AnswerOutcome{Correct: correct, Advanced: true, Completed: true, Result: result}, nil
	}

	if o.questionIndex > o.highWater {
		o.highWater = o.questionIndex
		o.persistProgress(ctx)
	}
	o.hydrateDraft()

	return &AnswerOutcome{Correct: correct, Advanced: true}, nil
}

// ===== COMPLETION =====

// Complete finalizes a session that has reached its last question. It is
// the re-entry point after a failed finalization and is safe to call
// repeatedly; a completed session returns its cached result.
func (o *Orchestrator) Complete(ctx context.Context) (*models.TestResult, error) {
	switch o.state {
	case StateCompleted:
		return o.result, nil
	case StateCompleting:
		return o.finalize(ctx)
	default:
		return nil, ErrNotCompleting
	}
}

func (o *Orchestrator) finalize(ctx context.Context) (*models.TestResult, error) {
	result, err := o.completer.Complete(ctx, o.session.ID)
	if err != nil {
		return nil, err
	}
	o.result = result
	o.state = StateCompleted
	return result, nil
}

// ===== TIME TRACKING =====

// Suspend folds the current active period into the accumulated elapsed
// time and persists progress, so backgrounding the app does not inflate
// the duration.
func (o *Orchestrator) Suspend(ctx context.Context) {
	if o.state != StateActive {
		return
	}
	o.elapsedBase = o.elapsed()
	o.activeSince = time.Time{}
	o.persistProgress(ctx)
}

// ResumeClock restarts elapsed-time accounting after a Suspend.
func (o *Orchestrator) ResumeClock() {
	if o.state == StateActive && o.activeSince.IsZero() {
		o.activeSince = o.now()
	}
}

func (o *Orchestrator) elapsed() time.Duration {
	if o.activeSince.IsZero() {
		return o.elapsedBase
	}
	return o.elapsedBase + o.now().Sub(o.activeSince)
}

// ===== HELPERS =====

func (o *Orchestrator) hydrateDraft() {
	question, ok := o.session.QuestionByIndex(o.questionIndex)
	if !ok {
		o.draft = models.Answer{}
		return
	}
	if stored, ok := o.session.Answers[question.ID]; ok {
		o.draft = stored
		return
	}
	o.draft = models.Answer{QuestionID: question.ID}
}

func (o *Orchestrator) persistProgress(ctx context.Context) {
	err := o.store.SaveProgress(ctx, o.session.ID, o.highWater, o.elapsed())
	if err != nil {
		// Non-fatal: only resumability after a restart degrades.
		o.logger.Warn("Failed to persist progress",
			"session_id", o.session.ID,
			"question_index", o.highWater,
			"error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event *events.SessionEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishSessionEvent(ctx, event); err != nil {
		o.logger.Warn("Failed to publish session event", "event_type", event.Type, "error", err)
	}
}
