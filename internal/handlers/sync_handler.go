package handlers

import (
	"net/http"
	"strconv"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/services"
)

// SyncHandler exposes push and pull.
type SyncHandler struct {
	sync *services.SyncService
}

func NewSyncHandler(sync *services.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Push reconciles a client snapshot into server state.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Code == "" || req.DeviceID == "" || req.Data == nil {
		writeError(w, http.StatusBadRequest, "Code, deviceId and data are required")
		return
	}

	result, err := h.sync.Push(r.Context(), req.Code, req.DeviceID, req.DeviceName, req.Data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := models.PushResponse{
		Success:         true,
		ServerUpdatedAt: result.ServerUpdatedAt,
	}
	if result.Merged {
		resp.Merged = true
		resp.MergedData = result.MergedData
	}
	writeJSON(w, http.StatusOK, resp)
}

// Pull returns server state newer than the client's since cursor.
// A missing or malformed since reads as zero, which always fetches.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}

	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil || since < 0 {
		since = 0
	}

	deviceID := r.URL.Query().Get("deviceId")
	deviceName := r.URL.Query().Get("deviceName")

	result, err := h.sync.Pull(r.Context(), code, deviceID, deviceName, since)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.PullResponse{
		Success:         true,
		HasChanges:      result.HasChanges,
		Data:            result.Data,
		ServerUpdatedAt: result.ServerUpdatedAt,
	})
}
