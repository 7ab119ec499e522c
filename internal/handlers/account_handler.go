package handlers

import (
	"net/http"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/services"
)

// AccountHandler exposes account creation and device login.
type AccountHandler struct {
	accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Create mints a fresh share code.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	code, err := h.accounts.CreateAccount(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.CreateAccountResponse{Success: true, Code: code})
}

// Login links a device to an existing account and returns its state.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Code == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "Code and deviceId are required")
		return
	}

	data, err := h.accounts.Login(r.Context(), req.Code, req.DeviceID, req.DeviceName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Success: true,
		Code:    models.NormalizeCode(req.Code),
		Data:    data,
	})
}
