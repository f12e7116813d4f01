package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/isdelr/postkeep-be/internal/services"
	"github.com/rs/zerolog/log"
)

// statusFor maps a service error to the HTTP status it is reported as.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err with its mapped status. Client errors carry
// the error text; server errors only carry fallback so storage details stay
// in the logs.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	switch status {
	case http.StatusUnauthorized:
		http.Error(w, "Unauthorized", status)
	case http.StatusInternalServerError:
		http.Error(w, fallback, status)
	default:
		http.Error(w, err.Error(), status)
	}
}

// decodeStatus picks the status for a body that failed to decode.
func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response body")
	}
}
