package utils

import (
	"errors"
	"net/http"
)

// Domain-level errors used by the service layer to provide
// fine-grained failure reasons.
var (
	ErrCheckpointNotFound   = errors.New("checkpoint_not_found")
	ErrNoActivePatrolRun    = errors.New("no_active_patrol_run")
	ErrCheckpointNotInRoute = errors.New("checkpoint_not_in_route")
	ErrOrganizationMismatch = errors.New("organization_mismatch")
	ErrInsufficientRole     = errors.New("insufficient_role")

	// Challenge verification failures
	ErrChallengeMalformed = errors.New("challenge_malformed")
	ErrChallengeSignature = errors.New("challenge_invalid_signature")
	ErrChallengeExpired   = errors.New("challenge_expired")

	// For invalid scan metadata (lat/lon, timestamps)
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrScannedAtOutOfRange = errors.New("scanned_at_out_of_range")

	// Additional examples
	ErrNoRowsUpdated = errors.New("no_rows_updated")
)

// AppError for structured error handling from services to controllers.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFound(message string, err error) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Code: ErrCodeNotFound, Message: message, Err: err}
}

func NewForbidden(message string, err error) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Code: ErrCodeForbidden, Message: message, Err: err}
}

func NewBadRequest(code, message string, err error) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Code: code, Message: message, Err: err}
}

func NewConflict(code, message string, err error) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Code: code, Message: message, Err: err}
}

// HandleAppError centralizes responding to AppErrors.
func HandleAppError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		RespondErrorWithCode(w, appErr.StatusCode, appErr.Code, appErr.Message, nil, appErr.Err)
	} else {
		// Fallback for unexpected error types
		RespondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred", nil, err)
	}
}
