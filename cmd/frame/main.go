// Command frame runs the talking photo frame: it greets the viewer, loops
// the portrait video and holds a spoken conversation until an exit phrase.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hubenschmidt/talking-photo-frame/internal/config"
	"github.com/hubenschmidt/talking-photo-frame/internal/env"
	"github.com/hubenschmidt/talking-photo-frame/internal/frame"
	"github.com/hubenschmidt/talking-photo-frame/internal/orchestrator"
	"github.com/hubenschmidt/talking-photo-frame/internal/playback"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
	"github.com/hubenschmidt/talking-photo-frame/internal/trace"
	"github.com/hubenschmidt/talking-photo-frame/internal/ws"
)

const (
	sidecarWait   = 60 * time.Second
	warmupTimeout = 30 * time.Second
	maxWatchers   = 8
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	_ = godotenv.Load()
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup completes first.
func run() int {
	home := env.Str("FRAME_HOME", executableDir())
	cfg, err := config.Load(env.Str("FRAME_CONFIG", filepath.Join(home, "frame.yaml")))
	if err != nil {
		slog.Error("config load failed", "error", err)
		return 1
	}
	cfg.ResolvePaths(home)
	if err := cfg.Validate(nil); err != nil {
		slog.Error("environment check failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcMgr := orchestrator.NewHTTPControlManager(sidecarRegistry(cfg))
	if notReady := svcMgr.EnsureReady(ctx, sidecarWait); len(notReady) > 0 {
		slog.Warn("sidecars not ready", "services", notReady)
	}

	st := buildStages(cfg)
	if st.asr != nil {
		wctx, cancel := context.WithTimeout(ctx, warmupTimeout)
		if err := st.asr.Warmup(wctx); err != nil {
			slog.Warn("asr warmup failed", "error", err)
		}
		cancel()
	}

	var traceStore *trace.Store
	var tracer *trace.Tracer
	if cfg.Trace.DSN != "" {
		traceStore, err = trace.Open(cfg.Trace.DSN)
		if err != nil {
			slog.Warn("trace store disabled", "error", err)
		} else {
			defer traceStore.Close()
			tracer = trace.NewTracer(traceStore, time.Now())
			slog.Info("tracing enabled", "session_id", tracer.SessionID())
		}
	}

	hub := ws.NewHub(maxWatchers)
	var srv *http.Server
	if cfg.Status.Addr != "" {
		mux := http.NewServeMux()
		registerRoutes(mux, deps{hub: hub, svcMgr: svcMgr, traceStore: traceStore, metricsDir: cfg.MetricsDir})
		srv = &http.Server{Addr: cfg.Status.Addr, Handler: mux}
		go func() {
			slog.Info("status server starting", "addr", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server failed", "error", err)
			}
		}()
	}

	logStore := session.NewStore(cfg.MetricsDir)
	coord, err := frame.New(frame.Config{
		Capture:      st.capture,
		Generate:     st.generate,
		Synthesize:   st.synthesize,
		Video:        playback.NewVideo(cfg.Playback.VideoPlayer, cfg.Playback.Video, cfg.Playback.VideoFilter),
		Log:          logStore,
		Tracer:       tracer,
		StageTimeout: cfg.StageTimeout,
		Pause:        cfg.Pause,
		Greeting:     cfg.Texts.Greeting,
		Farewell:     cfg.Texts.Farewell,
		Fallback:     cfg.Texts.Fallback,
		ExitPhrases:  cfg.Texts.ExitPhrases,
		HistoryTurns: cfg.HistoryTurns,
		OnEvent:      func(ev frame.Event) { hub.Publish(ev) },
	})
	if err != nil {
		slog.Error("coordinator init failed", "error", err)
		return 1
	}

	slog.Info("frame starting", "mode", cfg.Mode, "home", cfg.Home, "metrics_dir", logStore.Dir())
	path, runErr := coord.Run(ctx, cfg.MaxIterations)
	tracer.Close()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(sctx)
		cancel()
	}

	switch {
	case runErr == nil:
		slog.Info("frame stopped", "log", path)
		return 0
	case errors.Is(runErr, context.Canceled):
		slog.Info("frame interrupted", "log", path)
		return 130
	default:
		slog.Error("frame failed", "error", runErr, "log", path)
		return 1
	}
}

// executableDir is the default home: scripts, media and metrics sit beside the binary.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
