package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/services"
)

// DeviceHandler lists and unlinks the devices of an account.
type DeviceHandler struct {
	devices *services.DeviceService
}

func NewDeviceHandler(devices *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// List returns the account's devices, most recently seen first.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}

	devices, err := h.devices.List(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := models.DeviceListResponse{
		Success: true,
		Devices: make([]models.DeviceResponse, 0, len(devices)),
	}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, d.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unlink removes a device from the account.
func (h *DeviceHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")

	found, err := h.devices.Unlink(r.Context(), code, deviceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	writeJSON(w, http.StatusOK, models.SimpleResponse{Success: true})
}
