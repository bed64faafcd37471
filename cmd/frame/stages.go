package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/talking-photo-frame/internal/audio"
	"github.com/hubenschmidt/talking-photo-frame/internal/config"
	"github.com/hubenschmidt/talking-photo-frame/internal/frame"
	"github.com/hubenschmidt/talking-photo-frame/internal/orchestrator"
	"github.com/hubenschmidt/talking-photo-frame/internal/pipeline"
	"github.com/hubenschmidt/talking-photo-frame/internal/playback"
	"github.com/hubenschmidt/talking-photo-frame/internal/prompts"
)

const (
	// httpPoolSize bounds idle connections per sidecar. The loop is serial,
	// so a handful is plenty.
	httpPoolSize = 4

	// sidecarTimeout is the per-request ceiling for sidecar HTTP calls.
	// The coordinator's stage timeout usually fires first.
	sidecarTimeout = 60 * time.Second
)

type stages struct {
	capture    frame.Capturer
	generate   frame.Generator
	synthesize frame.Synthesizer
	asr        *pipeline.WhisperClient
}

// buildStages assembles the three stage collaborators for the configured mode.
func buildStages(cfg *config.Config) stages {
	if cfg.Mode == config.ModeCommand {
		return commandStages(cfg)
	}
	return nativeStages(cfg)
}

// commandStages runs each stage as a script inside its virtual environment.
// Capture and synthesis share the audio environment.
func commandStages(cfg *config.Config) stages {
	audioPy := config.PythonPath(cfg.Command.CaptureEnv)
	nlpPy := config.PythonPath(cfg.Command.GenerateEnv)
	return stages{
		capture:    pipeline.ScriptCapturer{Script: pipeline.NewScript(audioPy, cfg.Command.CaptureScript, cfg.Home)},
		generate:   pipeline.ScriptGenerator{Script: pipeline.NewScript(nlpPy, cfg.Command.GenerateScript, cfg.Home)},
		synthesize: pipeline.ScriptSynthesizer{Script: pipeline.NewScript(audioPy, cfg.Command.SynthScript, cfg.Home)},
	}
}

func nativeStages(cfg *config.Config) stages {
	httpClient := pipeline.NewPooledHTTPClient(httpPoolSize, sidecarTimeout)

	var translator pipeline.Translator
	if cfg.Translate.URL != "" && cfg.Language.User != cfg.Language.Model {
		translator = pipeline.NewLibreTranslator(cfg.Translate.URL, cfg.Translate.APIKey, httpClient)
	}

	asr := pipeline.NewWhisperClient(cfg.Capture.ASRURL, cfg.Capture.ASREndpoint, cfg.Language.User, httpClient)
	capturer := pipeline.NewSpeechCapturer(pipeline.CapturerConfig{
		Recorder:    pipeline.NewCommandRecorder(cfg.Capture.Recorder, cfg.Capture.Device, cfg.Capture.Duration, cfg.Capture.SampleRate),
		ASR:         asr,
		Translator:  translator,
		Gate:        audio.Gate{Threshold: cfg.Capture.EnergyThreshold},
		FilterNoise: cfg.Capture.NoiseFilter,
		Spoken:      cfg.Language.User,
		Model:       cfg.Language.Model,
	})

	opts := pipeline.GenerateOptions{
		Model:        cfg.Generate.Model,
		SystemPrompt: prompts.ForSession(cfg.Generate.SystemPrompt),
		MaxTokens:    cfg.Generate.MaxTokens,
		Temperature:  cfg.Generate.Temperature,
	}
	generator := pipeline.NewGeneratorRouter(map[string]pipeline.Generator{
		"openai": pipeline.NewOpenAIGenerator(cfg.APIKey, cfg.Generate.BaseURL, opts),
		"agent":  pipeline.NewAgentGenerator(pipeline.NewOpenAIAgentProvider(cfg.APIKey, cfg.Generate.BaseURL), opts),
	}, cfg.Generate.Engine, "openai")

	sp := cfg.Speech
	voices := map[string]pipeline.AudioSynthesizer{
		"openai": pipeline.NewOpenAISynthesizer(sp.URL, cfg.APIKey, sp.Model, sp.Voice, sp.Format, sp.Speed, httpClient),
	}
	if sp.PiperURL != "" {
		voices["piper"] = pipeline.NewPiperSynthesizer(sp.PiperURL, sp.PiperVoice, httpClient)
	}
	if cfg.ElevenLabsAPIKey != "" {
		voices["elevenlabs"] = pipeline.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, sp.ElevenLabsVoiceID, sp.ElevenLabsModelID, httpClient)
	}
	if _, ok := voices[sp.Engine]; !ok {
		slog.Warn("speech engine unavailable, using openai", "engine", sp.Engine)
	}
	synthesizer := pipeline.NewSpeechSynthesizer(pipeline.SynthesizerConfig{
		Backends:   voices,
		Engine:     sp.Engine,
		Fallback:   "openai",
		Translator: translator,
		Speaker:    playback.NewPlayer(cfg.Playback.Player),
		Model:      cfg.Language.Model,
		Spoken:     cfg.Language.User,
	})

	return stages{capture: capturer, generate: generator, synthesize: synthesizer, asr: asr}
}

// sidecarRegistry lists the local HTTP services native mode depends on.
// Hosted endpoints are not probed.
func sidecarRegistry(cfg *config.Config) *orchestrator.Registry {
	services := map[string]orchestrator.ServiceMeta{}
	if cfg.Mode != config.ModeNative {
		return orchestrator.NewRegistry(services)
	}
	if isLocal(cfg.Capture.ASRURL) {
		services["whisper-server"] = orchestrator.ServiceMeta{
			Category:   "asr",
			HealthURL:  strings.TrimRight(cfg.Capture.ASRURL, "/") + "/health",
			ControlURL: cfg.Services.WhisperControlURL,
		}
	}
	if cfg.Translate.URL != "" && cfg.Language.User != cfg.Language.Model && isLocal(cfg.Translate.URL) {
		services["libretranslate"] = orchestrator.ServiceMeta{
			Category:  "translate",
			HealthURL: strings.TrimRight(cfg.Translate.URL, "/") + "/languages",
		}
	}
	if cfg.Speech.Engine == "piper" && isLocal(cfg.Speech.PiperURL) {
		services["piper"] = orchestrator.ServiceMeta{
			Category:  "tts",
			HealthURL: strings.TrimRight(cfg.Speech.PiperURL, "/") + "/health",
		}
	}
	return orchestrator.NewRegistry(services)
}

func isLocal(url string) bool {
	return strings.Contains(url, "://localhost") || strings.Contains(url, "://127.0.0.1")
}
