package services

import (
	"errors"

	"github.com/skillcheck/session-engine/internal/gateway"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Session lifecycle errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionEmpty     = errors.New("session has no questions")
	ErrSessionNotLoaded = errors.New("session is not loaded")
	ErrSessionFailed    = errors.New("session is in a failed state")

	// Answering errors
	ErrExplanationPending = errors.New("explanation must be acknowledged before advancing")
	ErrNoExplanation      = errors.New("no explanation is pending")
	ErrNoCurrentQuestion  = errors.New("no current question")

	// Completion errors
	ErrNotCompleting = errors.New("session has not reached completion")

	// Validation
	ErrValidationFailed = errors.New("validation failed")
)

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition, either
// local or reported by the gateway.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || gateway.IsNotFound(err)
}

// IsRetryable checks if error represents a transient failure that a
// user-initiated retry may resolve. The orchestrator never auto-retries;
// re-entering the same state-machine step is always safe.
func IsRetryable(err error) bool {
	return gateway.IsRetryable(err)
}

// IsFatal checks if error represents an unrecoverable session condition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionEmpty) || errors.Is(err, ErrSessionFailed)
}
