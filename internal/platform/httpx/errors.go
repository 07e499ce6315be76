// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// StatusOf maps ledger errors to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrReconciliationDrift):
		return http.StatusConflict
	case errors.Is(err, shared.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps ledger errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		Problem(w, status, "Contention", "the ledger is busy, retry the request")
	case errors.Is(err, shared.ErrReconciliationDrift):
		Problem(w, status, "Reconciliation Drift", err.Error())
	case status == http.StatusInternalServerError:
		Problem(w, status, "Internal Error", "")
	default:
		Problem(w, status, titles[status], err.Error())
	}
}

var titles = map[int]string{
	http.StatusNotFound:            "Not Found",
	http.StatusBadRequest:          "Validation Failed",
	http.StatusUnprocessableEntity: "Invalid Transition",
	http.StatusConflict:            "Conflict",
}
