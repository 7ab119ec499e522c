package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/casilisto/sync/internal/services"
)

// Routes wires the sync API. The paths are part of the legacy contract.
func Routes(accounts *services.AccountService, sync *services.SyncService, devices *services.DeviceService) chi.Router {
	accountHandler := NewAccountHandler(accounts)
	syncHandler := NewSyncHandler(sync)
	deviceHandler := NewDeviceHandler(devices)

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/create", accountHandler.Create)
		r.Post("/user/login", accountHandler.Login)

		r.Post("/sync/push", syncHandler.Push)
		r.Get("/sync/pull", syncHandler.Pull)

		r.Get("/devices", deviceHandler.List)
		r.Delete("/devices/{deviceID}", deviceHandler.Unlink)

		r.Get("/health", Health)
	})

	return r
}
