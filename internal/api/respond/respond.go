// Package respond writes JSON responses and maps application errors onto
// HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/logging"
)

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL"
)

var statusByCode = map[string]int{
	domain.ErrNotFound.Code:           http.StatusNotFound,
	domain.ErrInvalidToken.Code:       http.StatusUnauthorized,
	domain.ErrTokenExpired.Code:       http.StatusUnauthorized,
	domain.ErrSessionRevoked.Code:     http.StatusUnauthorized,
	domain.ErrSessionExpired.Code:     http.StatusUnauthorized,
	domain.ErrInvalidSession.Code:     http.StatusUnauthorized,
	domain.ErrUserInactive.Code:       http.StatusForbidden,
	domain.ErrInvalidCredentials.Code: http.StatusUnauthorized,
	domain.ErrEmailExists.Code:        http.StatusConflict,
	domain.ErrInvalidStatus.Code:      http.StatusBadRequest,
	domain.ErrInvalidResetToken.Code:  http.StatusBadRequest,
	domain.ErrForbidden.Code:          http.StatusForbidden,
	domain.ErrStorageUnavailable.Code: http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for an application error code.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as a JSON error body. Application errors keep their code
// and message; anything else is logged and reported as INTERNAL.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domain.Error
	if errors.As(err, &appErr) {
		status := StatusFor(appErr.Code)
		if status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		JSON(w, status, ErrorBody{Error: ErrorDetail{Code: appErr.Code, Message: appErr.Message}})
		return
	}

	logging.FromContext(r.Context()).Error("request failed", "error", err)
	JSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{Code: CodeInternal, Message: "Internal server error"}})
}

// Fail writes an error body with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// ValidationFailed reports per-field validation messages.
func ValidationFailed(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
		Code:    CodeValidationFailed,
		Message: "Request validation failed",
		Fields:  fields,
	}})
}
