package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionCompleted EventType = "session_completed"
	EventSessionAbandoned EventType = "session_abandoned"
)

// SessionEvent is the envelope published for every session lifecycle
// transition.
type SessionEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewSessionEvent creates an event envelope with standard metadata.
func NewSessionEvent(eventType EventType, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "session-engine",
		Version:   "1.0",
		Timestamp: time.Now(),
		Data:      data,
	}
}

// ===== EVENT PAYLOADS =====

type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	TestID    string `json:"test_id"`
	UserID    string `json:"user_id"`
}

type SessionResumedEvent struct {
	SessionID     string `json:"session_id"`
	TestID        string `json:"test_id"`
	QuestionIndex int    `json:"question_index"`
}

type SessionCompletedEvent struct {
	SessionID      string `json:"session_id"`
	Score          int    `json:"score"`
	TotalPoints    int    `json:"total_points"`
	DurationMillis int64  `json:"duration_millis"`
}

type SessionAbandonedEvent struct {
	SessionID string `json:"session_id"`
}
