package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skillcheck/session-engine/internal/models"
)

// ===== WIRE SHAPES =====

type startSessionRequest struct {
	TestID string `json:"test_id"`
	UserID string `json:"user_id"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type questionDTO struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Type           string   `json:"type"`
	Options        []string `json:"options"`
	CorrectOptions []int    `json:"correct_options"`
	Points         int      `json:"points"`
	Explanation    string   `json:"explanation"`
}

type answerDTO struct {
	QuestionID     string `json:"question_id"`
	SelectedOption int    `json:"selected_option"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	TestID    string        `json:"test_id"`
	Questions []questionDTO `json:"questions"`
	Answers   []answerDTO   `json:"answers"`
	StartedAt time.Time     `json:"started_at"`
}

type saveAnswerRequest struct {
	QuestionID     string `json:"question_id"`
	SelectedOption int    `json:"selected_option"`
}

type ackResponse struct {
	Ack bool `json:"ack"`
}

type questionResultDTO struct {
	QuestionID    string `json:"question_id"`
	IsCorrect     bool   `json:"is_correct"`
	PointsEarned  int    `json:"points_earned"`
	CorrectAnswer string `json:"correct_answer"`
	UserAnswer    string `json:"user_answer"`
	Feedback      string `json:"feedback"`
}

type resultsResponse struct {
	Score           int                 `json:"score"`
	TotalPoints     int                 `json:"total_points"`
	Feedback        string              `json:"feedback"`
	QuestionResults []questionResultDTO `json:"question_results"`
	DurationMillis  int64               `json:"duration_millis"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPGateway implements SessionGateway over the testing platform's
// JSON API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (g *HTTPGateway) StartSession(ctx context.Context, testID, userID string) (string, error) {
	var resp startSessionResponse
	err := g.do(ctx, http.MethodPost, "/api/v1/sessions", startSessionRequest{TestID: testID, UserID: userID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", NewError(CodeBadResponse, 0, "start session returned empty session id")
	}
	return resp.SessionID, nil
}

func (g *HTTPGateway) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var resp sessionResponse
	err := g.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &resp)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        resp.SessionID,
		TestID:    resp.TestID,
		Questions: make([]models.Question, len(resp.Questions)),
		Answers:   make(map[string]models.Answer, len(resp.Answers)),
		StartedAt: resp.StartedAt,
	}
	for i, q := range resp.Questions {
		session.Questions[i] = models.Question{
			ID:             q.ID,
			Text:           q.Text,
			Type:           models.QuestionType(q.Type),
			Options:        q.Options,
			CorrectOptions: q.CorrectOptions,
			Points:         q.Points,
			Explanation:    q.Explanation,
		}
	}
	// Server-side answers only carry a single option index; the
	// orchestrator overlays the full local snapshot on top of these.
	for _, a := range resp.Answers {
		session.Answers[a.QuestionID] = models.Answer{
			QuestionID:      a.QuestionID,
			SelectedOptions: []int{a.SelectedOption},
		}
	}
	return session, nil
}

func (g *HTTPGateway) SaveAnswer(ctx context.Context, sessionID string, answer models.Answer) error {
	// The wire contract carries a single selected-option index.
	// Multi-select answers are narrowed to their first selected index
	// here; the full answer is preserved in the orchestrator's local
	// state and snapshot.
	selected := 0
	if len(answer.SelectedOptions) > 0 {
		selected = answer.SelectedOptions[0]
	}

	var resp ackResponse
	req := saveAnswerRequest{QuestionID: answer.QuestionID, SelectedOption: selected}
	err := g.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/answers", req, &resp)
	if err != nil {
		return err
	}
	if !resp.Ack {
		return NewError(CodeBadResponse, 0, "save answer was not acknowledged")
	}
	return nil
}

func (g *HTTPGateway) RequestCompletion(ctx context.Context, sessionID string) error {
	var resp ackResponse
	err := g.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/complete", nil, &resp)
	if err != nil {
		return err
	}
	if !resp.Ack {
		return NewError(CodeBadResponse, 0, "completion was not acknowledged")
	}
	return nil
}

func (g *HTTPGateway) GetResults(ctx context.Context, sessionID string) (*models.TestResult, error) {
	var resp resultsResponse
	err := g.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/results", nil, &resp)
	if err != nil {
		return nil, err
	}

	result := &models.TestResult{
		SessionID:       sessionID,
		Score:           resp.Score,
		TotalPoints:     resp.TotalPoints,
		Feedback:        resp.Feedback,
		QuestionResults: make([]models.QuestionResult, len(resp.QuestionResults)),
		DurationMillis:  resp.DurationMillis,
	}
	for i, qr := range resp.QuestionResults {
		result.QuestionResults[i] = models.QuestionResult{
			QuestionID:    qr.QuestionID,
			IsCorrect:     qr.IsCorrect,
			PointsEarned:  qr.PointsEarned,
			CorrectAnswer: qr.CorrectAnswer,
			UserAnswer:    qr.UserAnswer,
			Feedback:      qr.Feedback,
		}
	}
	return result, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("Gateway request failed", "method", method, "path", path, "error", err)
		return NewError(CodeUnavailable, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return g.classifyError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(CodeBadResponse, resp.StatusCode, "failed to decode response: "+err.Error())
		}
	}
	return nil
}

func (g *HTTPGateway) classifyError(resp *http.Response) error {
	var payload errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &payload)

	message := payload.Error
	if message == "" {
		message = strings.TrimSpace(string(data))
	}
	if message == "" {
		message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusConflict && strings.Contains(message, "already completed"):
		return NewError(CodeAlreadyCompleted, resp.StatusCode, message)
	case resp.StatusCode == http.StatusNotFound:
		return NewError(CodeNotFound, resp.StatusCode, message)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return NewError(CodeUnavailable, resp.StatusCode, message)
	default:
		return NewError(CodeBadResponse, resp.StatusCode, message)
	}
}
