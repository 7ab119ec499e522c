package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/repository"
	"github.com/casilisto/sync/internal/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accountRepo := repository.NewAccountRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	stateRepo := repository.NewSyncStateRepository(db, repository.DriverSQLite)

	accounts := services.NewAccountService(accountRepo, deviceRepo, stateRepo, nil)
	sync := services.NewSyncService(accountRepo, deviceRepo, stateRepo, nil)
	devices := services.NewDeviceService(accountRepo, deviceRepo, nil, time.Hour, 30*24*time.Hour)

	srv := httptest.NewServer(Routes(accounts, sync, devices))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	return resp
}

func createAccount(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp, body := postJSON(t, srv.URL+"/api/user/create", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var code string
	require.NoError(t, json.Unmarshal(body["code"], &code))
	require.Len(t, code, models.CodeLength)
	return code
}

func pushItems(t *testing.T, srv *httptest.Server, code, deviceID string, items ...models.Item) models.PushResponse {
	t.Helper()

	data := &models.SyncData{Items: items}
	data.Normalize()

	buf, err := json.Marshal(models.PushRequest{
		Code:     code,
		DeviceID: deviceID,
		Data:     data,
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/sync/push", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.PushResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateAndLogin(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	resp, body := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
		Code:     code,
		DeviceID: "dev-1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(body["success"]))
	assert.JSONEq(t, fmt.Sprintf("%q", code), string(body["code"]))
}

func TestLoginValidation(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing fields", func(t *testing.T) {
		resp, body := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{Code: "ABCDEF"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `"Code and deviceId are required"`, string(body["error"]))
	})

	t.Run("unknown code", func(t *testing.T) {
		resp, body := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
			Code:     "ZZZZ22",
			DeviceID: "dev-1",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `"Code not found"`, string(body["error"]))
	})
}

func TestPushPullRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	first := pushItems(t, srv, code, "dev-1", models.Item{ID: "1", Text: "Milk"})
	assert.False(t, first.Merged, "seeding an empty account is not a merge")
	assert.Positive(t, first.ServerUpdatedAt)

	var pull models.PullResponse
	resp := getJSON(t, srv.URL+"/api/sync/pull?code="+code, &pull)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, pull.HasChanges)
	require.NotNil(t, pull.Data)
	require.Len(t, pull.Data.Items, 1)
	assert.Equal(t, "Milk", pull.Data.Items[0].Text)
	assert.Equal(t, first.ServerUpdatedAt, pull.ServerUpdatedAt)

	t.Run("up-to-date cursor skips payload", func(t *testing.T) {
		var noChange models.PullResponse
		url := fmt.Sprintf("%s/api/sync/pull?code=%s&since=%d", srv.URL, code, first.ServerUpdatedAt)
		resp := getJSON(t, url, &noChange)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, noChange.HasChanges)
		assert.Nil(t, noChange.Data)
	})

	t.Run("garbage since reads as zero", func(t *testing.T) {
		var pull models.PullResponse
		resp := getJSON(t, srv.URL+"/api/sync/pull?code="+code+"&since=banana", &pull)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, pull.HasChanges)
	})
}

func TestPullRefreshesDevice(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	var pull models.PullResponse
	resp := getJSON(t, srv.URL+"/api/sync/pull?code="+code+"&deviceId=poller&deviceName=Poller", &pull)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list models.DeviceListResponse
	resp = getJSON(t, srv.URL+"/api/devices?code="+code, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "poller", list.Devices[0].ID)
	assert.Equal(t, "Poller", list.Devices[0].Name)
}

func TestConcurrentDevicesMerge(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	pushItems(t, srv, code, "dev-1", models.Item{ID: "1", Text: "Milk"})
	second := pushItems(t, srv, code, "dev-2", models.Item{ID: "2", Text: "Bread"})

	assert.True(t, second.Merged)
	require.NotNil(t, second.MergedData)

	texts := make([]string, 0, 2)
	for _, it := range second.MergedData.Items {
		texts = append(texts, it.Text)
	}
	assert.ElementsMatch(t, []string{"Milk", "Bread"}, texts)
}

func TestClientWinsOnSameItem(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	pushItems(t, srv, code, "dev-1", models.Item{ID: "1", Text: "Milk"})
	out := pushItems(t, srv, code, "dev-2", models.Item{ID: "1", Text: "Milk (2%)", Completed: true})

	require.True(t, out.Merged)
	require.Len(t, out.MergedData.Items, 1)
	assert.Equal(t, "Milk (2%)", out.MergedData.Items[0].Text)
	assert.True(t, out.MergedData.Items[0].Completed)
}

func TestPushValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/sync/push", map[string]any{
		"code":     "ABCDEF",
		"deviceId": "dev-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `"Code, deviceId and data are required"`, string(body["error"]))
}

func TestDeviceLifecycle(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	for _, id := range []string{"dev-1", "dev-2"} {
		resp, _ := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
			Code: code, DeviceID: id, DeviceName: "Device " + id,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var list models.DeviceListResponse
	resp := getJSON(t, srv.URL+"/api/devices?code="+code, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Devices, 2)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/devices/dev-1?code="+code, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	t.Run("second delete is 404", func(t *testing.T) {
		delResp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer delResp.Body.Close()
		assert.Equal(t, http.StatusNotFound, delResp.StatusCode)

		var body models.ErrorResponse
		require.NoError(t, json.NewDecoder(delResp.Body).Decode(&body))
		assert.Equal(t, "Device not found", body.Error)
	})

	resp = getJSON(t, srv.URL+"/api/devices?code="+code, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Devices, 1)
	assert.Equal(t, "dev-2", list.Devices[0].ID)
}

func TestDeviceLimitOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	code := createAccount(t, srv)

	for i := 0; i < models.MaxDevicesPerAccount; i++ {
		resp, _ := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
			Code: code, DeviceID: fmt.Sprintf("dev-%d", i),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
		Code: code, DeviceID: "dev-extra",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var msg string
	require.NoError(t, json.Unmarshal(body["error"], &msg))
	assert.Contains(t, msg, "limit")

	t.Run("known device still logs in at the cap", func(t *testing.T) {
		resp, _ := postJSON(t, srv.URL+"/api/user/login", models.LoginRequest{
			Code: code, DeviceID: "dev-0",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var health models.HealthResponse
	resp := getJSON(t, srv.URL+"/api/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.InDelta(t, models.NowMillis(), health.Timestamp, float64(5*time.Second.Milliseconds()))
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/user/login", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
