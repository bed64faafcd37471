package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/talking-photo-frame/internal/orchestrator"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
	"github.com/hubenschmidt/talking-photo-frame/internal/trace"
	"github.com/hubenschmidt/talking-photo-frame/internal/ws"
)

type fakeServices struct {
	started []string
	failOn  string
}

func (f *fakeServices) Start(_ context.Context, name string) error {
	if name == f.failOn {
		return errors.New("control unreachable")
	}
	f.started = append(f.started, name)
	return nil
}

func (f *fakeServices) Stop(context.Context, string) error { return nil }

func (f *fakeServices) Status(_ context.Context, name string) (*orchestrator.ServiceInfo, error) {
	return &orchestrator.ServiceInfo{Name: name, Status: orchestrator.StatusHealthy, Category: "asr"}, nil
}

func (f *fakeServices) StatusAll(ctx context.Context) ([]orchestrator.ServiceInfo, error) {
	info, _ := f.Status(ctx, "whisper-server")
	return []orchestrator.ServiceInfo{*info}, nil
}

func newTestServer(t *testing.T, d deps) *httptest.Server {
	t.Helper()
	if d.hub == nil {
		d.hub = ws.NewHub(1)
	}
	if d.svcMgr == nil {
		d.svcMgr = &fakeServices{}
	}
	mux := http.NewServeMux()
	registerRoutes(mux, d)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, deps{metricsDir: t.TempDir()})

	code, body := get(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	code, body = get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "frame_session_active")
}

func TestLatestReport(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, deps{metricsDir: dir})

	code, _ := get(t, srv.URL+"/api/report/latest")
	require.Equal(t, http.StatusNotFound, code)

	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local)
	sess := session.New(start)
	sess.Append(session.Interaction{
		Timestamp:    start.Add(5 * time.Second),
		S2TLatency:   session.Seconds(2 * time.Second),
		UserInput:    "how are you",
		NLPLatency:   session.Seconds(time.Second),
		Response:     "I'm well, dear.",
		T2SLatency:   session.Seconds(time.Second),
		TotalLatency: session.Seconds(4 * time.Second),
	})
	sess.Close(start.Add(time.Minute))
	_, err := session.NewStore(dir).Write(sess)
	require.NoError(t, err)

	code, body := get(t, srv.URL+"/api/report/latest")
	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.HasPrefix(body, "="))
	require.Contains(t, body, "PERFORMANCE METRICS REPORT")
	require.Contains(t, body, "Total Interactions: 1")

	code, body = get(t, srv.URL+"/api/report/latest?format=json")
	require.Equal(t, http.StatusOK, code)
	var out struct {
		File   string         `json:"file"`
		Report map[string]any `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Equal(t, "metrics_v1_20261017_090100.json", out.File)
	require.EqualValues(t, 1, out.Report["Interactions"])
}

func TestServiceRoutes(t *testing.T) {
	svc := &fakeServices{failOn: "piper"}
	srv := newTestServer(t, deps{svcMgr: svc})

	code, body := get(t, srv.URL+"/api/services")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"status":"healthy"`)

	resp, err := http.Post(srv.URL+"/api/services/whisper-server/start", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"whisper-server"}, svc.started)

	resp, err = http.Post(srv.URL+"/api/services/piper/start", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestTraceRoutes(t *testing.T) {
	disabled := newTestServer(t, deps{})
	code, _ := get(t, disabled.URL+"/api/traces/sessions")
	require.Equal(t, http.StatusNotFound, code)

	store, err := trace.Open("file:routestest?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tr := trace.NewTracer(store, start)
	runID := tr.StartRun(0)
	tr.RecordSpan(runID, "capture", start, 1500, "", "hello", "ok", "")
	tr.EndRun(runID, 4000, "hello", "hello, dear", "ok")
	tr.Close()

	srv := newTestServer(t, deps{traceStore: store})

	code, body := get(t, srv.URL+"/api/traces/sessions?limit=5")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, tr.SessionID())
	require.Contains(t, body, `"total":1`)

	code, body = get(t, srv.URL+"/api/traces/sessions/"+tr.SessionID()+"/runs/"+runID)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "hello, dear")

	code, _ = get(t, srv.URL+"/api/traces/sessions/missing")
	require.Equal(t, http.StatusNotFound, code)
}
