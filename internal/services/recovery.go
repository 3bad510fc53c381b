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
)

// ResumableSession pairs an unfinished session with its last persisted
// cursor position.
type ResumableSession struct {
	Session       *models.Session `json:"session"`
	QuestionIndex int             `json:"question_index"`
	ElapsedTime   time.Duration   `json:"elapsed_time"`
}

// RecoveryScanner discovers unfinished sessions so a user can resume
// instead of restarting.
type RecoveryScanner struct {
	gw        gateway.SessionGateway
	store     store.ProgressStore
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewRecoveryScanner(gw gateway.SessionGateway, progressStore store.ProgressStore, publisher events.EventPublisher, logger *slog.Logger) *RecoveryScanner {
	return &RecoveryScanner{
		gw:        gw,
		store:     progressStore,
		publisher: publisher,
		logger:    logger,
	}
}

// ListResumable returns the most recently marked unfinished session for
// the given test, or nil if none exists. Candidates that cannot be
// fetched are skipped; one unreachable session never aborts the scan.
func (r *RecoveryScanner) ListResumable(ctx context.Context, testID string) (*ResumableSession, error) {
	sessionIDs, err := r.store.IncompleteSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete sessions: %w", err)
	}

	for _, sessionID := range sessionIDs {
		session, err := r.gw.GetSession(ctx, sessionID)
		if err != nil {
			r.logger.Warn("Skipping unreachable incomplete session",
				"session_id", sessionID, "error", err)
			continue
		}
		if session.TestID != testID {
			continue
		}

		index := 0
		if saved, found, err := r.store.GetProgress(ctx, sessionID); err != nil {
			r.logger.Warn("Failed to read progress for resumable session",
				"session_id", sessionID, "error", err)
		} else if found {
			index = saved
		}

		var elapsed time.Duration
		if saved, found, err := r.store.GetElapsedTime(ctx, sessionID); err == nil && found {
			elapsed = saved
		}

		r.logger.Info("Found resumable session",
			"session_id", sessionID,
			"test_id", testID,
			"question_index", index)

		return &ResumableSession{
			Session:       session,
			QuestionIndex: index,
			ElapsedTime:   elapsed,
		}, nil
	}

	return nil, nil
}

// Discard abandons an unfinished session. Its bookkeeping is removed
// before any fresh attempt for the same test starts, so the two attempts
// never collide.
func (r *RecoveryScanner) Discard(ctx context.Context, sessionID string) error {
	if err := r.store.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to discard session: %w", err)
	}

	if r.publisher != nil {
		event := events.NewSessionEvent(events.EventSessionAbandoned, events.SessionAbandonedEvent{
			SessionID: sessionID,
		})
		if err := r.publisher.PublishSessionEvent(ctx, event); err != nil {
			r.logger.Warn("Failed to publish session event", "event_type", event.Type, "error", err)
		}
	}

	r.logger.Info("Session discarded", "session_id", sessionID)
	return nil
}
