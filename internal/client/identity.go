package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// Identity is the stable per-installation device identity. The device
// ID survives restarts so the server sees one device, not a parade of
// fresh registrations.
type Identity struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// EnsureIdentity loads the identity file at path, creating it with a
// fresh UUID on first run.
func EnsureIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err == nil && id.DeviceID != "" {
			return &id, nil
		}
		// corrupt file, regenerate below
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	id := &Identity{
		DeviceID:   uuid.New().String(),
		DeviceName: DescribeDevice(),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	buf, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return nil, err
	}
	return id, nil
}

// DescribeDevice builds a human-readable device name from the host.
func DescribeDevice() string {
	platform := map[string]string{
		"darwin":  "Mac",
		"linux":   "Linux",
		"windows": "Windows",
	}[runtime.GOOS]
	if platform == "" {
		platform = runtime.GOOS
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		return platform
	}
	return host + " (" + platform + ")"
}
