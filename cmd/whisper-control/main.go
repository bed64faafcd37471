// Command whisper-control supervises a local whisper.cpp server so the frame
// can start it on demand and probe it before listening.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hubenschmidt/talking-photo-frame/internal/env"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	home, _ := os.UserHomeDir()
	port := env.Str("CONTROL_PORT", "8179")
	srv := newServer(
		env.Str("WHISPER_BIN", filepath.Join(home, ".local/bin/whisper-server")),
		env.Str("WHISPER_MODEL", filepath.Join(home, ".local/share/whisper/ggml-small.bin")),
		env.Str("WHISPER_PORT", "8178"),
		env.Str("WHISPER_THREADS", "4"),
		env.Str("WHISPER_LANGUAGE", "te"),
	)

	slog.Info("whisper-control listening", "port", port, "whisper_port", srv.port)
	if err := http.ListenAndServe(":"+port, srv.routes()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	return mux
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	started, err := s.start()
	if err != nil {
		slog.Error("start whisper-server", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !started {
		writeJSON(w, map[string]string{"status": "already_running"})
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"running": s.running()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
