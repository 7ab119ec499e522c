package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/observability"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Success: false, Error: message})
}

// writeServiceError maps domain errors to the legacy status codes and
// messages. Unknown errors never leak their text to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation models.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Message)
		return
	}

	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Code not found")
	case errors.Is(err, models.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "Device not found")
	case errors.Is(err, models.ErrDeviceLimitExceeded):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAccountCreationFailed):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		observability.Errorf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}
