package models

import "time"

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	FreeText       QuestionType = "free_text"
	Code           QuestionType = "code"
)

// Question is one prompt inside a test. CorrectOptions is used only for
// immediate client-side feedback; the authoritative grade always comes
// from the remote service.
type Question struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type" validate:"omitempty,question_type"`
	Options        []string     `json:"options"`
	CorrectOptions []int        `json:"correct_options"`
	Points         int          `json:"points"`
	Explanation    string       `json:"explanation"`
}

// Answer is the user's current response to one question. Exactly one of
// the three answer shapes is meaningful for a given question type.
type Answer struct {
	QuestionID      string `json:"question_id" validate:"required"`
	SelectedOptions []int  `json:"selected_options"`
	TextAnswer      string `json:"text_answer"`
	CodeAnswer      string `json:"code_answer"`
}

// Session is a single test attempt. Questions are fixed once the session
// is loaded; their order defines navigation order. Answers holds the
// current answer per question id, overwritten on resubmission.
type Session struct {
	ID        string            `json:"id"`
	TestID    string            `json:"test_id"`
	Questions []Question        `json:"questions"`
	Answers   map[string]Answer `json:"answers"`
	StartedAt time.Time         `json:"started_at"`
}

// QuestionByIndex returns the question at the given navigation position.
func (s *Session) QuestionByIndex(idx int) (Question, bool) {
	if idx < 0 || idx >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[idx], true
}

// TotalPoints sums the point values of all questions in the session.
func (s *Session) TotalPoints() int {
	total := 0
	for _, q := range s.Questions {
		total += q.Points
	}
	return total
}
