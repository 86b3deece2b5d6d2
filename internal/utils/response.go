package utils

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	ErrCodeInvalidPayload       = "invalid_payload"
	ErrCodeValidation           = "validation_error"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeTokenExpired         = "token_expired"
	ErrCodeForbidden            = "forbidden"
	ErrCodeInternal             = "internal_server_error"
	ErrCodeNotFound             = "not_found"
	ErrCodeConflict             = "conflict"
	ErrCodeInvalidChallenge     = "invalid_challenge"
	ErrCodeChallengeReplayed    = "challenge_replayed"
	ErrCodeCheckpointNotInRoute = "checkpoint_not_in_route"
	ErrCodeMissingDeviceID      = "missing_device_id"
)

// ErrorResponse carries an optional `Details` field for extra context.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RespondErrorWithCode builds a JSON error response with a standard
// code and message. The optional `details` is included if non-nil.
func RespondErrorWithCode(
	w http.ResponseWriter,
	status int,
	errorCode string,
	publicMessage string,
	details any,
	devErrs ...error,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errBody := ErrorResponse{
		Code:    errorCode,
		Message: publicMessage,
	}
	if details != nil {
		errBody.Details = details
	}
	_ = json.NewEncoder(w).Encode(errBody)

	fields := logrus.Fields{"status": status, "code": errorCode}
	if len(devErrs) > 0 && devErrs[0] != nil {
		fields["error"] = devErrs[0].Error()
	}
	if status >= http.StatusInternalServerError {
		Logger.WithFields(fields).Error(publicMessage)
	} else {
		Logger.WithFields(fields).Warn(publicMessage)
	}
}

// RespondWithJSON for successful cases
func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
