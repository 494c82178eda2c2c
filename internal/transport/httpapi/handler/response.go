package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/shared/errors"
)

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondAppError maps an application error onto an HTTP status and writes
// the payload with its stable code and details.
func respondAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, statusForCode(appErr.Code), errorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

func statusForCode(code string) int {
	switch code {
	case apperrors.ErrCodeBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeIllegalStateTransition,
		apperrors.ErrCodeAlreadyReversed,
		apperrors.ErrCodeInactiveAccount:
		return http.StatusConflict
	case apperrors.ErrCodeCurrencyMismatch,
		apperrors.ErrCodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeConcurrencyExhausted,
		apperrors.ErrCodeStoreUnavailable,
		apperrors.ErrCodeCancelled:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
