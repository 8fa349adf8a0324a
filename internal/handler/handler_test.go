package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"soho/internal/controller"
	"soho/internal/device"
	"soho/internal/session"
	"soho/internal/weblog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the test read log output while handlers write it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var l map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &l))
		out = append(out, l)
	}
	return out
}

func (b *syncBuffer) messages(t *testing.T) []string {
	var out []string
	for _, l := range b.lines(t) {
		out = append(out, l["msg"].(string))
	}
	return out
}

type testServer struct {
	srv  *httptest.Server
	logs *syncBuffer
	repo *device.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logs := &syncBuffer{}
	weblogLogger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := device.NewMemoryRepository(
		device.Device{ID: 42, Name: "lamp", Kind: "light", Online: true, EnergyWh: 90},
	)
	sessions := session.NewMemoryStore(time.Hour)
	r := NewRouter(RouterDeps{
		Devices: &DeviceHandler{
			Controller:  &controller.DeviceController{Repo: repo},
			Interceptor: weblog.New(weblog.ParseSelector("controller..*"), weblog.WithLogger(weblogLogger)),
		},
		Health:        NewHealthHandler("", sessions),
		Sessions:      sessions,
		SessionCookie: "SOHOSESSION",
		CORSOrigins:   "*",
		Logger:        quiet,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, logs: logs, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, body)
	require.NoError(t, err)
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestDevices_FindByIDIsIntercepted(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodGet, "/devices/42?verbose=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d device.Device
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, "lamp", d.Name)

	assert.Equal(t, []string{"around", "before", "after returning", "after", "around done"}, s.logs.messages(t))
	lines := s.logs.lines(t)
	before := lines[1]
	assert.Equal(t, "[42]", before["args"])
	assert.Equal(t, "controller.DeviceController", before["type"])
	assert.Equal(t, "FindByID", before["method"])
	assert.Equal(t, map[string]any{"verbose": "1"}, before["params"])
	assert.NotEmpty(t, before["session"])
	assert.Equal(t, d.String(), lines[2]["result"])
}

func TestDevices_SessionReusedAcrossRequests(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/devices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/devices/42", nil)
	require.NoError(t, err)
	req.AddCookie(cookies[0])
	resp2, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	resp2.Body.Close()

	var sessions []string
	for _, l := range s.logs.lines(t) {
		if l["msg"] == "before" {
			sessions = append(sessions, l["session"].(string))
		}
	}
	require.Len(t, sessions, 2)
	assert.Equal(t, cookies[0].Value, sessions[0])
	assert.Equal(t, sessions[0], sessions[1])
}

func TestDevices_NotFound(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodGet, "/devices/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(raw), "device not found")
	assert.Equal(t, []string{"around", "before", "after"}, s.logs.messages(t))
}

func TestDevices_AveragePower(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodGet, "/devices/42/power?samples=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.InDelta(t, 30.0, out["average_wh"], 1e-9)
}

func TestDevices_AveragePowerByZeroLogsArithmetic(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodGet, "/devices/42/power?samples=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(raw), "division by zero")
	assert.Equal(t, []string{"around", "before", "after throwing", "after"}, s.logs.messages(t))
}

func TestDevices_BadInputNeverReachesController(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/devices/abc", "/devices/0", "/devices/42/power?samples=x"} {
		resp, _ := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
	assert.Empty(t, s.logs.lines(t))
}

func TestDevices_CreateAndDelete(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodPost, "/devices", strings.NewReader(`{"name":"fan","kind":"climate"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created device.Device
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, int64(43), created.ID)

	resp, _ = s.do(t, http.MethodPost, "/devices", strings.NewReader(`{"name":""}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/devices", strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/devices/43", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err := s.repo.Get(context.Background(), 43)
	assert.ErrorIs(t, err, device.ErrNotFound)

	var results []string
	for _, l := range s.logs.lines(t) {
		if l["msg"] == "after returning" {
			results = append(results, l["result"].(string))
		}
	}
	require.Len(t, results, 2)
	assert.Equal(t, created.String(), results[0])
	assert.Equal(t, "none", results[1])
}

func TestDevices_CreateBodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	big := `{"name":"` + strings.Repeat("x", MaxRequestBodyBytes) + `"}`
	resp, _ := s.do(t, http.MethodPost, "/devices", strings.NewReader(big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHealth_NotInterceptedAndOK(t *testing.T) {
	s := newTestServer(t)

	resp, raw := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, map[string]any{"registry": "memory", "sessions": "ok"}, out["dependencies"])
	assert.Empty(t, s.logs.lines(t))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth_Degraded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	h := NewHealthHandler(upstream.URL+"/health", failingPinger{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, map[string]any{"registry": "unreachable", "sessions": "unreachable"}, out["dependencies"])
}

func TestDevices_ConcurrentRequestsKeepTheirArgs(t *testing.T) {
	s := newTestServer(t)
	for i := int64(1); i <= 20; i++ {
		_, err := s.repo.Save(context.Background(), device.Device{Name: "sensor"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for id := 43; id <= 62; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/devices/"+strconv.Itoa(id), nil)
			if !assert.NoError(t, err) {
				return
			}
			resp, err := s.srv.Client().Do(req)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}(id)
	}
	wg.Wait()

	argsByCall := map[string]string{}
	for _, l := range s.logs.lines(t) {
		args, ok := l["args"].(string)
		if !ok {
			continue
		}
		id := l["call_id"].(string)
		if prev, seen := argsByCall[id]; seen {
			assert.Equal(t, prev, args, "call %s logged two argument lists", id)
		}
		argsByCall[id] = args
	}
	assert.Len(t, argsByCall, 20)
	distinct := map[string]bool{}
	for _, a := range argsByCall {
		distinct[a] = true
	}
	assert.Len(t, distinct, 20)
}
