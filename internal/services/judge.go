package services

import "github.com/skillcheck/session-engine/internal/models"

// JudgeLocally decides whether an answer should be treated as correct
// for immediate UI feedback. It is a pure function and advisory only:
// the authoritative score is always computed by the remote service.
//
// Question types that cannot be verified client-side (free text, code)
// are always treated as advance-worthy.
func JudgeLocally(question models.Question, answer models.Answer) bool {
	switch question.Type {
	case models.SingleChoice, models.MultipleChoice:
		if len(question.CorrectOptions) == 0 {
			return true
		}
		return sameOptionSet(answer.SelectedOptions, question.CorrectOptions)
	default:
		return true
	}
}

// sameOptionSet compares two option index sets ignoring order and
// duplicates.
func sameOptionSet(a, b []int) bool {
	set := make(map[int]struct{}, len(a))
	for _, opt := range a {
		set[opt] = struct{}{}
	}
	want := make(map[int]struct{}, len(b))
	for _, opt := range b {
		want[opt] = struct{}{}
	}
	if len(set) != len(want) {
		return false
	}
	for opt := range want {
		if _, ok := set[opt]; !ok {
			return false
		}
	}
	return true
}
