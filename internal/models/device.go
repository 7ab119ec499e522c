package models

// MaxDevicesPerAccount caps live device registrations per account.
// Re-registering a known device id never counts against the cap.
const MaxDevicesPerAccount = 10

// DefaultDeviceName is used when a client does not send a label.
const DefaultDeviceName = "Unknown device"

// Device is one client installation linked to an account.
type Device struct {
	ID          string `json:"id"`
	AccountCode string `json:"accountCode"`
	Name        string `json:"name"`
	LastSeen    int64  `json:"lastSeen"`
	CreatedAt   int64  `json:"createdAt"`
}

// DeviceResponse is the wire shape of a device entry. Field names are
// snake_case to stay byte-compatible with the legacy client.
type DeviceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LastSeen  int64  `json:"last_seen"`
	CreatedAt int64  `json:"created_at"`
}

// ToResponse converts a Device to its wire shape.
func (d *Device) ToResponse() DeviceResponse {
	return DeviceResponse{
		ID:        d.ID,
		Name:      d.Name,
		LastSeen:  d.LastSeen,
		CreatedAt: d.CreatedAt,
	}
}
