package gateway

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// CodeAlreadyCompleted is the distinguishable condition the service
	// returns when completion is requested for a session that has already
	// been finalized. The completion coordinator reclassifies it as
	// success; it must never surface to a caller as a failure.
	CodeAlreadyCompleted ErrorCode = "already_completed"

	CodeNotFound    ErrorCode = "not_found"
	CodeUnavailable ErrorCode = "unavailable"
	CodeBadResponse ErrorCode = "bad_response"
)

// Error is the typed failure reported by the session gateway.
type Error struct {
	Code    ErrorCode `json:"code"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway error (%s, status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway error (%s): %s", e.Code, e.Message)
}

func NewError(code ErrorCode, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// IsAlreadyCompleted reports whether err carries the service's
// "already completed" condition.
func IsAlreadyCompleted(err error) bool {
	return hasCode(err, CodeAlreadyCompleted)
}

// IsNotFound reports whether err indicates the resource does not exist
// on the service side.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsRetryable reports whether err is a transient transport failure that
// a user-initiated retry may resolve.
func IsRetryable(err error) bool {
	return hasCode(err, CodeUnavailable)
}

func hasCode(err error, code ErrorCode) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == code
}
