package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/security"
	"reseller-ledger/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, domain.Succeeded(message, data))
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, domain.Failed(message, nil))
}

// writeError maps service and repository errors onto HTTP statuses.
// Unexpected errors are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeFailure(w, status, "internal error")
		return
	}
	writeFailure(w, status, err.Error())
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, errBadRequest),
		service.IsUserError(err),
		errors.Is(err, service.ErrInvalidShares),
		errors.Is(err, security.ErrInvalidPINFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoCommissionPlan),
		errors.Is(err, service.ErrNoRateConfigured),
		errors.Is(err, service.ErrAmountOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, repository.ErrTransient), errors.Is(err, repository.ErrConflict):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
