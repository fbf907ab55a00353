package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInvalidToken      = "INVALID_OR_EXPIRED_TOKEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Sentinels shared by the domain packages. Wrap them with fmt.Errorf("%w: ...").
var (
	ErrInvalidOrExpiredToken = stderrors.New("invalid or expired token")
	ErrValidationFailed      = stderrors.New("validation failed")
	ErrAuditWriteFailure     = stderrors.New("audit write failed")
	ErrConfigurationMissing  = stderrors.New("configuration missing")
	ErrNotFound              = stderrors.New("not found")
	ErrConflict              = stderrors.New("conflict")
	ErrQuotaExceeded         = stderrors.New("quota exceeded")
	ErrUnauthorized          = stderrors.New("unauthorized")
	ErrForbidden             = stderrors.New("forbidden")
)

// Is and As re-export the standard helpers so callers importing this package
// under the name errors keep them at hand.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

// StatusFor maps a domain error to the HTTP status and error code used in responses.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case stderrors.Is(err, ErrInvalidOrExpiredToken):
		return http.StatusUnprocessableEntity, ErrCodeInvalidToken
	case stderrors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case stderrors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	case stderrors.Is(err, ErrQuotaExceeded):
		return http.StatusConflict, ErrCodeQuotaExceeded
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// WriteDomainError renders err through StatusFor. Internal errors never leak their text.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	WriteError(w, status, code, message, nil)
}
