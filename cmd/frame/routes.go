package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/talking-photo-frame/internal/analyzer"
	"github.com/hubenschmidt/talking-photo-frame/internal/orchestrator"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
	"github.com/hubenschmidt/talking-photo-frame/internal/trace"
)

// defaultTraceSessionLimit is how many trace sessions are returned when the
// caller omits ?limit=.
const defaultTraceSessionLimit = 20

type deps struct {
	hub        http.Handler
	svcMgr     orchestrator.ServiceManager
	traceStore *trace.Store
	metricsDir string
}

// registerRoutes wires the read-only status endpoints plus sidecar control.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("/health", d.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/events", d.hub)
	mux.HandleFunc("GET /api/report/latest", d.handleLatestReport)
	mux.HandleFunc("GET /api/services", d.handleServices)
	mux.HandleFunc("POST /api/services/{name}/start", d.handleServiceStart)
	mux.HandleFunc("POST /api/services/{name}/stop", d.handleServiceStop)
	registerTraceRoutes(mux, d.traceStore)
}

// handleHealth fails only when tracing is enabled and its database is unreachable.
func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.traceStore != nil {
		if err := d.traceStore.Ping(r.Context()); err != nil {
			http.Error(w, "trace store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleLatestReport renders the analyzer report for the newest session log,
// as text by default or JSON with ?format=json.
func (d deps) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	path, err := session.Latest(d.metricsDir)
	if errors.Is(err, session.ErrNoLogs) {
		http.Error(w, "no session logs", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	report, err := analyzer.AnalyzeFile(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, map[string]any{"file": filepath.Base(path), "report": report})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := analyzer.Render(w, report); err != nil {
		slog.Warn("render report", "error", err)
	}
}

func (d deps) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := d.svcMgr.StatusAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"services": services})
}

func (d deps) handleServiceStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := d.svcMgr.Start(r.Context(), name); err != nil {
		slog.Error("service start", "name", name, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "starting", "name": name})
}

func (d deps) handleServiceStop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := d.svcMgr.Stop(r.Context(), name); err != nil {
		slog.Error("service stop", "name", name, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "stopped", "name": name})
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	traced := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				http.Error(w, "tracing disabled", http.StatusNotFound)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /api/traces/sessions", traced(func(w http.ResponseWriter, r *http.Request) {
		sessions, total, err := store.ListSessions(queryInt(r, "limit", defaultTraceSessionLimit), queryInt(r, "offset", 0))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"sessions": sessions, "total": total})
	}))

	mux.HandleFunc("GET /api/traces/sessions/{id}", traced(func(w http.ResponseWriter, r *http.Request) {
		sess, runs, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"session": sess, "runs": runs})
	}))

	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", traced(func(w http.ResponseWriter, r *http.Request) {
		run, spans, err := store.GetRun(r.PathValue("id"), r.PathValue("runId"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"run": run, "spans": spans})
	}))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return n
}
