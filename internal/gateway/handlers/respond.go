package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/database"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps domain errors onto HTTP statuses
func writeErr(w http.ResponseWriter, err error, details any) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Details: verrs})
	case errors.Is(err, usage.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "quota exceeded", Details: details})
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, usage.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "usage accounting unavailable, try again later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a request body into dst and validates it
func decodeJSON(r *http.Request, dst validation.Validatable) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return validation.Errors{"body": fmt.Errorf("invalid JSON: %w", err)}
	}
	return dst.Validate()
}
