package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/casilisto/sync/internal/models"
)

// NetworkError wraps transport-level failures: the request never got a
// response. These are the retriable, queueable failures.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRateLimited reports whether the server rejected the request with 429.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether the server answered 404.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsDeviceLimit reports whether the account refused another device.
// The legacy wire format carries no error codes, so this matches on
// the message.
func IsDeviceLimit(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) &&
		ae.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(ae.Message), "limit")
}

// Transport speaks the sync wire protocol to one server.
type Transport struct {
	baseURL string
	http    *http.Client
}

// NewTransport creates a transport for the given base URL. A nil
// client gets a 10 second timeout default.
func NewTransport(baseURL string, hc *http.Client) *Transport {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// BaseURL returns the server this transport talks to.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

func (t *Transport) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody models.ErrorResponse
		msg := http.StatusText(resp.StatusCode)
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateAccount mints a fresh share code.
func (t *Transport) CreateAccount(ctx context.Context) (string, error) {
	var resp models.CreateAccountResponse
	if err := t.doJSON(ctx, http.MethodPost, "/api/user/create", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Code, nil
}

// Login links this device to the account and returns server state.
func (t *Transport) Login(ctx context.Context, code string, id *Identity) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := t.doJSON(ctx, http.MethodPost, "/api/user/login", models.LoginRequest{
		Code:       code,
		DeviceID:   id.DeviceID,
		DeviceName: id.DeviceName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push submits a candidate snapshot for reconciliation.
func (t *Transport) Push(ctx context.Context, code string, id *Identity, data *models.SyncData, localUpdatedAt int64) (*models.PushResponse, error) {
	var resp models.PushResponse
	err := t.doJSON(ctx, http.MethodPost, "/api/sync/push", models.PushRequest{
		Code:           code,
		DeviceID:       id.DeviceID,
		DeviceName:     id.DeviceName,
		Data:           data,
		LocalUpdatedAt: localUpdatedAt,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches server state newer than the since cursor. The device
// identity rides along so polling refreshes the registration.
func (t *Transport) Pull(ctx context.Context, code string, id *Identity, since int64) (*models.PullResponse, error) {
	q := url.Values{}
	q.Set("code", code)
	if id != nil {
		q.Set("deviceId", id.DeviceID)
		q.Set("deviceName", id.DeviceName)
	}
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}

	var resp models.PullResponse
	if err := t.doJSON(ctx, http.MethodGet, "/api/sync/pull?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Devices lists the account's registered devices.
func (t *Transport) Devices(ctx context.Context, code string) ([]models.DeviceResponse, error) {
	var resp models.DeviceListResponse
	if err := t.doJSON(ctx, http.MethodGet, "/api/devices?code="+code, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// Unlink removes a device from the account.
func (t *Transport) Unlink(ctx context.Context, code, deviceID string) error {
	return t.doJSON(ctx, http.MethodDelete, "/api/devices/"+deviceID+"?code="+code, nil, nil)
}

// Health probes the server. A nil error means reachable.
func (t *Transport) Health(ctx context.Context) error {
	var resp models.HealthResponse
	return t.doJSON(ctx, http.MethodGet, "/api/health", nil, &resp)
}

// Replay re-sends a previously queued request verbatim.
func (t *Transport) Replay(ctx context.Context, entry *QueueEntry) error {
	var reader io.Reader
	if len(entry.Body) > 0 {
		reader = bytes.NewReader(entry.Body)
	}

	req, err := http.NewRequestWithContext(ctx, entry.Method, t.baseURL+entry.Path, reader)
	if err != nil {
		return err
	}
	if len(entry.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}
