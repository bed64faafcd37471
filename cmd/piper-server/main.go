// Command piper-server exposes the piper speech synthesizer over HTTP for the
// frame's "piper" voice: POST /synthesize {"text","voice"} returns a WAV clip.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubenschmidt/talking-photo-frame/internal/env"
)

const synthTimeout = 60 * time.Second

type synthRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthServer struct {
	bin          string
	modelDir     string
	defaultVoice string
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	port := env.Str("PIPER_PORT", "5100")
	s := &synthServer{
		bin:          env.Str("PIPER_BIN", "/usr/local/bin/piper"),
		modelDir:     env.Str("PIPER_MODEL_DIR", "/models"),
		defaultVoice: env.Str("PIPER_VOICE", "te_IN-venkatesh-medium"),
	}

	slog.Info("piper-server listening", "port", port, "voice", s.defaultVoice)
	if err := http.ListenAndServe(":"+port, s.routes()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func (s *synthServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /synthesize", s.handleSynthesize)
	return mux
}

func (s *synthServer) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	voice, err := s.resolveVoice(req.Voice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), synthTimeout)
	defer cancel()

	start := time.Now()
	clip, err := s.run(ctx, req.Text, voice)
	if err != nil {
		slog.Error("piper synthesis", "voice", voice, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("synthesized", "voice", voice, "chars", len(req.Text), "bytes", len(clip), "ms", time.Since(start).Milliseconds())

	w.Header().Set("Content-Type", "audio/wav")
	w.Write(clip)
}

// resolveVoice falls back to the default voice and rejects names that would
// escape the model directory.
func (s *synthServer) resolveVoice(voice string) (string, error) {
	if voice == "" {
		return s.defaultVoice, nil
	}
	if voice != filepath.Base(voice) || strings.HasPrefix(voice, ".") {
		return "", fmt.Errorf("invalid voice %q", voice)
	}
	return voice, nil
}

func (s *synthServer) run(ctx context.Context, text, voice string) ([]byte, error) {
	model := filepath.Join(s.modelDir, voice+".onnx")

	out, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, s.bin,
		"--model", model,
		"--config", model+".json",
		"--output_file", outPath,
	)
	cmd.Stdin = strings.NewReader(text)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return os.ReadFile(outPath)
}
