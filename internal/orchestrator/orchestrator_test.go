package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSidecar serves /health once started and a control API for it.
func fakeSidecar(t *testing.T, running bool) (health, control *httptest.Server, starts *atomic.Int32) {
	t.Helper()
	var up atomic.Bool
	up.Store(running)
	starts = &atomic.Int32{}

	health = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(health.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", func(w http.ResponseWriter, r *http.Request) {
		starts.Add(1)
		up.Store(true)
	})
	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		up.Store(false)
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"running": up.Load()})
	})
	control = httptest.NewServer(mux)
	t.Cleanup(control.Close)
	return health, control, starts
}

func TestStatusAndControl(t *testing.T) {
	health, control, _ := fakeSidecar(t, false)
	m := NewHTTPControlManager(NewRegistry(map[string]ServiceMeta{
		"whisper": {Category: "asr", HealthURL: health.URL, ControlURL: control.URL},
		"piper":   {Category: "tts"},
	}))
	ctx := context.Background()

	info, err := m.Status(ctx, "whisper")
	require.NoError(t, err)
	require.Equal(t, StatusStopped, info.Status)

	require.NoError(t, m.Start(ctx, "whisper"))
	info, err = m.Status(ctx, "whisper")
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, info.Status)

	all, err := m.StatusAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []ServiceInfo{
		{Name: "piper", Status: StatusUnknown, Category: "tts"},
		{Name: "whisper", Status: StatusHealthy, Category: "asr"},
	}, all)

	require.NoError(t, m.Stop(ctx, "whisper"))
	require.Error(t, m.Start(ctx, "piper"), "no control url")
	require.Error(t, m.Start(ctx, "unknown"))
	_, err = m.Status(ctx, "unknown")
	require.Error(t, err)
}

func TestEnsureReady(t *testing.T) {
	health, control, starts := fakeSidecar(t, false)
	deadHealth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer deadHealth.Close()

	m := NewHTTPControlManager(NewRegistry(map[string]ServiceMeta{
		"whisper":   {Category: "asr", HealthURL: health.URL, ControlURL: control.URL},
		"translate": {Category: "translate", HealthURL: deadHealth.URL},
	}))

	notReady := m.EnsureReady(context.Background(), 600*time.Millisecond)
	require.Equal(t, []string{"translate"}, notReady)
	require.EqualValues(t, 1, starts.Load())
}
