package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillcheck/session-engine/internal/models"
	"github.com/skillcheck/session-engine/internal/services"
)

// SessionHandler exposes the session engine over HTTP for the app shell.
// Each session is driven by a single client at a time; the only racy
// operation, completion, is serialized inside the engine.
type SessionHandler struct {
	BaseHandler
	engine *services.Engine
}

func NewSessionHandler(engine *services.Engine, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		engine:      engine,
	}
}

// ===== VIEW SHAPES =====

type sessionView struct {
	SessionID          string          `json:"session_id"`
	TestID             string          `json:"test_id"`
	State              string          `json:"state"`
	QuestionIndex      int             `json:"question_index"`
	QuestionCount      int             `json:"question_count"`
	Question           models.Question `json:"question"`
	Draft              models.Answer   `json:"draft"`
	ExplanationPending bool            `json:"explanation_pending"`
	ElapsedMillis      int64           `json:"elapsed_millis"`
}

func viewOf(orch *services.Orchestrator) sessionView {
	view := sessionView{
		SessionID:          orch.Session().ID,
		TestID:             orch.Session().TestID,
		State:              string(orch.State()),
		QuestionIndex:      orch.QuestionIndex(),
		QuestionCount:      len(orch.Session().Questions),
		Draft:              orch.Draft(),
		ExplanationPending: orch.ExplanationPending(),
		ElapsedMillis:      orch.ElapsedTime().Milliseconds(),
	}
	if q, err := orch.CurrentQuestion(); err == nil {
		view.Question = q
	}
	return view
}

// ===== SESSION LIFECYCLE =====

// StartSession creates a fresh attempt for a test
// POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body", Details: err.Error()})
		return
	}

	orch, err := h.engine.StartSession(c.Request.Context(), &req)
	if err != nil {
		h.RespondWithError(c, err, "Failed to start session")
		return
	}

	c.JSON(http.StatusCreated, viewOf(orch))
}

// ResumeSession loads an unfinished attempt at its furthest saved point
// POST /api/v1/sessions/:id/resume
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	orch, err := h.engine.ResumeSession(c.Request.Context(), sessionID)
	if err != nil {
		h.RespondWithError(c, err, "Failed to resume session")
		return
	}

	c.JSON(http.StatusOK, viewOf(orch))
}

// GetSession returns the current view of a live session
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(orch))
}

// GetResumable finds the most recent unfinished attempt for a test
// GET /api/v1/sessions/resumable?test_id=...
func (h *SessionHandler) GetResumable(c *gin.Context) {
	testID := c.Query("test_id")
	if testID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "test_id query parameter is required"})
		return
	}

	resumable, err := h.engine.Scanner().ListResumable(c.Request.Context(), testID)
	if err != nil {
		h.RespondWithError(c, err, "Failed to scan for resumable sessions")
		return
	}
	if resumable == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, resumable)
}

// DiscardSession abandons an unfinished attempt
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) DiscardSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	if err := h.engine.Scanner().Discard(c.Request.Context(), sessionID); err != nil {
		h.RespondWithError(c, err, "Failed to discard session")
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Session discarded", nil)
}

// ===== ANSWERING =====

// SubmitAnswer stores the answer for the current question and advances
// or surfaces the explanation
// POST /api/v1/sessions/:id/answers
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	var draft models.Answer
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid answer body", Details: err.Error()})
		return
	}

	if err := orch.SetDraft(draft); err != nil {
		h.RespondWithError(c, err, "Failed to set answer draft")
		return
	}

	outcome, err := orch.SubmitAnswer(c.Request.Context())
	if err != nil {
		h.RespondWithError(c, err, "Failed to submit answer")
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// AcknowledgeExplanation advances past a locally incorrect answer
// POST /api/v1/sessions/:id/acknowledge
func (h *SessionHandler) AcknowledgeExplanation(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	outcome, err := orch.AcknowledgeExplanation(c.Request.Context())
	if err != nil {
		h.RespondWithError(c, err, "Failed to acknowledge explanation")
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// PreviousQuestion moves the cursor back one question
// POST /api/v1/sessions/:id/previous
func (h *SessionHandler) PreviousQuestion(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	if err := orch.Previous(); err != nil {
		h.RespondWithError(c, err, "Failed to navigate to previous question")
		return
	}

	c.JSON(http.StatusOK, viewOf(orch))
}

// ===== COMPLETION & RESULTS =====

// CompleteSession finalizes a session that has passed its last question
// POST /api/v1/sessions/:id/complete
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	result, err := orch.Complete(c.Request.Context())
	if err != nil {
		h.RespondWithError(c, err, "Failed to complete session")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetResult returns the graded result of a completed session
// GET /api/v1/sessions/:id/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	result := orch.Result()
	if result == nil {
		h.RespondWithError(c, services.ErrNotCompleting, "Session has no result yet")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportResult downloads the result as an xlsx workbook
// GET /api/v1/sessions/:id/result/export
func (h *SessionHandler) ExportResult(c *gin.Context) {
	orch, ok := h.liveSession(c)
	if !ok {
		return
	}

	result := orch.Result()
	if result == nil {
		h.RespondWithError(c, services.ErrNotCompleting, "Session has no result yet")
		return
	}

	data, err := h.engine.Exporter().ExportResultToExcel(result)
	if err != nil {
		h.RespondWithError(c, err, "Failed to export result")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="result-`+result.SessionID+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *SessionHandler) liveSession(c *gin.Context) (*services.Orchestrator, bool) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return nil, false
	}

	orch, err := h.engine.Session(sessionID)
	if err != nil {
		h.RespondWithError(c, err, "Session not found")
		return nil, false
	}
	return orch, true
}
