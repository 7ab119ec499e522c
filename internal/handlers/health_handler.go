package handlers

import (
	"net/http"

	"github.com/casilisto/sync/internal/models"
)

// Health reports liveness with the current server time in millis, so
// clients can use it as a cheap connectivity probe.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: models.NowMillis(),
	})
}
