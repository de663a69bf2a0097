package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volume-sync/vsc/internal/auth"
	"github.com/volume-sync/vsc/internal/config"
	"github.com/volume-sync/vsc/internal/dispatch"
	"github.com/volume-sync/vsc/internal/mounts"
	"github.com/volume-sync/vsc/internal/task"
	"github.com/volume-sync/vsc/internal/telemetry"
)

// newTestStack wires hub, runner, and dispatcher over a static mount source
// and returns a running HTTP test server.
func newTestStack(t *testing.T, cfg *config.Config, listing []mounts.Mount) *httptest.Server {
	t.Helper()

	hub := telemetry.NewHub(cfg)
	t.Cleanup(hub.Stop)

	notifier := mounts.NewNotifier(&mounts.StaticSource{Mounts: listing}, nil, nil, nil)
	t.Cleanup(notifier.Stop)

	runner := task.NewRunner(hub, notifier, cfg.Tasks.QueueCapacity)
	dispatcher := dispatch.NewDispatcher(runner, hub)
	require.NoError(t, dispatcher.Subscribe(context.Background()))

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		_ = runner.Run(context.Background())
	}()
	t.Cleanup(func() {
		runner.Stop()
		<-runnerDone
	})

	server := NewServer(cfg, dispatcher, hub, runner, auth.NewMiddleware(nil), nil)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	// Wait for the runner to come up so requests don't race its start.
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/v1/mounts")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 5*time.Millisecond)

	return ts
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.TasksPerSecond = 0 // unlimited for tests
	return cfg
}

func postTask(t *testing.T, ts *httptest.Server, body string) (*http.Response, Response) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/tasks", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func taskData(t *testing.T, env Response) TaskResponse {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var tr TaskResponse
	require.NoError(t, json.Unmarshal(raw, &tr))
	return tr
}

func TestPostTaskListMounts(t *testing.T) {
	usb := "/media/usb0"
	ts := newTestStack(t, testConfig(), []mounts.Mount{
		{Filesystem: "vfat", Device: "/dev/sdb1", Path: &usb},
	})

	resp, env := postTask(t, ts, `{"op":"listMounts"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", env.Result)
	assert.NotEmpty(t, env.CorrelationID)

	tr := taskData(t, env)
	assert.True(t, tr.OK)
	assert.Greater(t, tr.ID, int64(0))

	raw, err := json.Marshal(tr.Value)
	require.NoError(t, err)
	var listing []mounts.Mount
	require.NoError(t, json.Unmarshal(raw, &listing))
	require.Len(t, listing, 1)
	assert.Equal(t, "/dev/sdb1", listing[0].Device)
}

func TestPostTaskInitSpawnTwice(t *testing.T) {
	ts := newTestStack(t, testConfig(), nil)

	resp, env := postTask(t, ts, `{"op":"initSpawn"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	first := taskData(t, env)
	assert.True(t, first.OK)

	// The second initialization settles as a domain error, still HTTP 200.
	resp, env = postTask(t, ts, `{"op":"initSpawn"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	second := taskData(t, env)
	assert.False(t, second.OK)
	assert.Equal(t, "already initialized", second.Err)
	assert.Greater(t, second.ID, first.ID)
}

func TestPostTaskRejectsBadRequests(t *testing.T) {
	ts := newTestStack(t, testConfig(), nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown op", `{"op":"frobnicate"}`, http.StatusBadRequest, "INVALID_PARAMETER"},
		{"malformed json", `{`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown fields", `{"op":"listMounts","extra":1}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"trailing data", `{"op":"listMounts"}{}`, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := postTask(t, ts, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "error", env.Result)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestTasksMethodNotAllowed(t *testing.T) {
	ts := newTestStack(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGetMounts(t *testing.T) {
	usb := "/media/usb0"
	ts := newTestStack(t, testConfig(), []mounts.Mount{
		{Filesystem: "ext4", Device: "/dev/sdc1", Path: &usb},
	})

	resp, err := http.Get(ts.URL + "/api/v1/mounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "ok", env.Result)
	tr := taskData(t, env)
	assert.True(t, tr.OK)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestStack(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "ok", env.Result)

	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Contains(t, data, "initialized")
	assert.Contains(t, data, "queueDepth")
}

func TestCapabilitiesEndpoint(t *testing.T) {
	ts := newTestStack(t, testConfig(), nil)

	resp, err := http.Get(ts.URL + "/api/v1/capabilities")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)

	ops, ok := data["operations"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, ops, "initSpawn")
	assert.Contains(t, ops, "listMounts")
}

func TestRateLimitRejectsBursts(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.TasksPerSecond = 1
	cfg.RateLimit.Burst = 1
	ts := newTestStack(t, cfg, nil)

	// The readiness poll in newTestStack hits /mounts, which is not rate
	// limited, so the bucket is still full here.
	resp1, _ := postTask(t, ts, `{"op":"listMounts"}`)
	assert.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, env := postTask(t, ts, `{"op":"listMounts"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
	assert.Equal(t, "RATE_LIMITED", env.Code)
}

func TestStatusAndCodeMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{task.ErrBusy, http.StatusServiceUnavailable, "BUSY"},
		{task.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{dispatch.ErrUnknownOperation, http.StatusBadRequest, "INVALID_PARAMETER"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{assert.AnError, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		status, code, _ := statusAndCode(tt.err)
		assert.Equal(t, tt.wantStatus, status, "err %v", tt.err)
		assert.Equal(t, tt.wantCode, code, "err %v", tt.err)
	}
}
