// Package gateway is the narrow boundary to the remote testing service.
// Every operation is a typed request/response pair and may be
// network-latent; failures are reported as *Error values.
package gateway

import (
	"context"

	"github.com/skillcheck/session-engine/internal/models"
)

// SessionGateway exposes the remote testing service operations the
// session engine depends on.
//
// RequestCompletion is not idempotent on the service side: a second call
// for an already-completed session fails with the "already completed"
// condition instead of succeeding silently. The completion coordinator
// compensates for this client-side.
type SessionGateway interface {
	StartSession(ctx context.Context, testID, userID string) (string, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	SaveAnswer(ctx context.Context, sessionID string, answer models.Answer) error
	RequestCompletion(ctx context.Context, sessionID string) error
	GetResults(ctx context.Context, sessionID string) (*models.TestResult, error)
}
