package models

// Wire DTOs for the sync API. The JSON field names are part of the
// legacy contract and must not change.

// LoginRequest links a device to an existing account.
type LoginRequest struct {
	Code       string `json:"code"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// PushRequest submits a candidate dataset for reconciliation.
// LocalUpdatedAt is informational only; the server never trusts it.
type PushRequest struct {
	Code           string    `json:"code"`
	DeviceID       string    `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	Data           *SyncData `json:"data"`
	LocalUpdatedAt int64     `json:"localUpdatedAt"`
}

// CreateAccountResponse carries the freshly generated account code.
type CreateAccountResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

// LoginResponse returns the canonical dataset for the linked account.
type LoginResponse struct {
	Success bool      `json:"success"`
	Code    string    `json:"code"`
	Data    *SyncData `json:"data"`
}

// PushResponse reports the server-assigned timestamp. When the push
// was reconciled against divergent server state, Merged is set and
// MergedData carries the combined dataset so the pushing device can
// update its own copy.
type PushResponse struct {
	Success         bool      `json:"success"`
	ServerUpdatedAt int64     `json:"serverUpdatedAt"`
	Merged          bool      `json:"merged,omitempty"`
	MergedData      *SyncData `json:"mergedData,omitempty"`
}

// PullResponse returns the canonical dataset when it changed after the
// client's cursor, otherwise just the current server timestamp.
type PullResponse struct {
	Success         bool      `json:"success"`
	HasChanges      bool      `json:"hasChanges"`
	Data            *SyncData `json:"data,omitempty"`
	ServerUpdatedAt int64     `json:"serverUpdatedAt"`
}

// DeviceListResponse lists the account's devices, most recently seen
// first.
type DeviceListResponse struct {
	Success bool             `json:"success"`
	Devices []DeviceResponse `json:"devices"`
}

// SimpleResponse acknowledges an operation with no payload.
type SimpleResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the stable error body shape for every failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
