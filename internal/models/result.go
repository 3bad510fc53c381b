package models

// QuestionResult is the per-question outcome inside a graded result.
type QuestionResult struct {
	QuestionID    string `json:"question_id"`
	IsCorrect     bool   `json:"is_correct"`
	PointsEarned  int    `json:"points_earned"`
	CorrectAnswer string `json:"correct_answer"`
	UserAnswer    string `json:"user_answer"`
	Feedback      string `json:"feedback"`
}

// TestResult is the terminal artifact of a session, computed by the
// remote service. It is produced once per session and idempotently
// re-fetchable any number of times after completion.
type TestResult struct {
	SessionID       string           `json:"session_id"`
	Score           int              `json:"score"`
	TotalPoints     int              `json:"total_points"`
	Feedback        string           `json:"feedback"`
	QuestionResults []QuestionResult `json:"question_results"`
	DurationMillis  int64            `json:"duration_millis"`
}
