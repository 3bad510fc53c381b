// Package store provides durable local persistence of per-session test
// progress: the question cursor, accumulated elapsed time, a snapshot of
// the full answers map, and the set of sessions considered incomplete.
package store

import (
	"context"
	"time"

	"github.com/skillcheck/session-engine/internal/models"
)

// ProgressStore is the contract for per-session progress persistence.
// Operations on the same session id must be linearizable (later write
// wins); no ordering guarantees are required between separate sessions.
type ProgressStore interface {
	// SaveProgress overwrites the cursor position, wall-clock timestamp
	// and accumulated elapsed time for a session.
	SaveProgress(ctx context.Context, sessionID string, questionIndex int, elapsedTime time.Duration) error

	// GetProgress returns the last saved cursor position, or false if the
	// session has never been saved.
	GetProgress(ctx context.Context, sessionID string) (int, bool, error)

	// GetElapsedTime returns the last saved accumulated duration, or
	// false if the session has never been saved.
	GetElapsedTime(ctx context.Context, sessionID string) (time.Duration, bool, error)

	// SaveAnswerSnapshot stores the full answers map for a session. The
	// snapshot keeps multi-select answers at full fidelity even though
	// the gateway wire format narrows them to a single option.
	SaveAnswerSnapshot(ctx context.Context, sessionID string, answers map[string]models.Answer) error

	// GetAnswerSnapshot returns the stored answers map, or false if no
	// snapshot exists for the session.
	GetAnswerSnapshot(ctx context.Context, sessionID string) (map[string]models.Answer, bool, error)

	// MarkIncomplete adds the session to the incomplete-session set.
	// Marking an already-member session refreshes its recency.
	MarkIncomplete(ctx context.Context, sessionID string) error

	// RemoveIncomplete removes the session from the incomplete-session set.
	RemoveIncomplete(ctx context.Context, sessionID string) error

	// IncompleteSessions lists the incomplete-session set, most recently
	// marked first.
	IncompleteSessions(ctx context.Context) ([]string, error)

	// ClearSession removes the session's progress, snapshot and
	// incomplete-set membership together.
	ClearSession(ctx context.Context, sessionID string) error
}
