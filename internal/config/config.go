package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	tpfenv "github.com/hubenschmidt/talking-photo-frame/internal/env"
	"github.com/hubenschmidt/talking-photo-frame/internal/prompts"
)

const (
	ModeNative  = "native"
	ModeCommand = "command"

	// CredentialEnv gates access to the hosted language model.
	CredentialEnv = "OPENAI_API_KEY"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingPath       = errors.New("missing required path")
)

type Config struct {
	Home          string        `koanf:"home"`
	MetricsDir    string        `koanf:"metrics_dir"`
	Mode          string        `koanf:"mode"` // native, command
	StageTimeout  time.Duration `koanf:"stage_timeout"`
	Pause         time.Duration `koanf:"pause"`
	MaxIterations int           `koanf:"max_iterations"`
	HistoryTurns  int           `koanf:"history_turns"`

	Texts     TextsConfig     `koanf:"texts"`
	Language  LanguageConfig  `koanf:"language"`
	Capture   CaptureConfig   `koanf:"capture"`
	Translate TranslateConfig `koanf:"translate"`
	Generate  GenerateConfig  `koanf:"generate"`
	Speech    SpeechConfig    `koanf:"speech"`
	Playback  PlaybackConfig  `koanf:"playback"`
	Command   CommandConfig   `koanf:"command"`
	Status    StatusConfig    `koanf:"status"`
	Trace     TraceConfig     `koanf:"trace"`
	Services  ServicesConfig  `koanf:"services"`

	// APIKey is read from OPENAI_API_KEY, never from the config file.
	APIKey string `koanf:"-"`
	// ElevenLabsAPIKey is read from ELEVENLABS_API_KEY.
	ElevenLabsAPIKey string `koanf:"-"`
}

type TextsConfig struct {
	Greeting    string   `koanf:"greeting"`
	Farewell    string   `koanf:"farewell"`
	Fallback    string   `koanf:"fallback"`
	ExitPhrases []string `koanf:"exit_phrases"`
}

// LanguageConfig names the language the user speaks and the language the model is prompted in.
type LanguageConfig struct {
	User  string `koanf:"user"`
	Model string `koanf:"model"`
}

type CaptureConfig struct {
	Recorder        string        `koanf:"recorder"` // arecord, rec
	Device          string        `koanf:"device"`
	Duration        time.Duration `koanf:"duration"`
	SampleRate      int           `koanf:"sample_rate"`
	EnergyThreshold float64       `koanf:"energy_threshold"`
	ASRURL          string        `koanf:"asr_url"`
	ASREndpoint     string        `koanf:"asr_endpoint"`
	NoiseFilter     bool          `koanf:"noise_filter"`
}

type TranslateConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
}

type GenerateConfig struct {
	Engine       string  `koanf:"engine"` // openai, agent
	Model        string  `koanf:"model"`
	BaseURL      string  `koanf:"base_url"`
	SystemPrompt string  `koanf:"system_prompt"`
	MaxTokens    int     `koanf:"max_tokens"`
	Temperature  float64 `koanf:"temperature"`
}

type SpeechConfig struct {
	Engine            string  `koanf:"engine"` // openai, elevenlabs, piper
	URL               string  `koanf:"url"`
	Model             string  `koanf:"model"`
	Voice             string  `koanf:"voice"`
	Format            string  `koanf:"format"`
	Speed             float64 `koanf:"speed"`
	PiperURL          string  `koanf:"piper_url"`
	PiperVoice        string  `koanf:"piper_voice"`
	ElevenLabsVoiceID string  `koanf:"elevenlabs_voice_id"`
	ElevenLabsModelID string  `koanf:"elevenlabs_model_id"`
}

type PlaybackConfig struct {
	Player      string `koanf:"player"` // ffplay, aplay, mpg123
	VideoPlayer string `koanf:"video_player"`
	Video       string `koanf:"video"`
	VideoFilter string `koanf:"video_filter"`
}

// CommandConfig describes the script-per-stage layout used in command mode.
type CommandConfig struct {
	CaptureEnv     string `koanf:"capture_env"`
	GenerateEnv    string `koanf:"generate_env"`
	CaptureScript  string `koanf:"capture_script"`
	GenerateScript string `koanf:"generate_script"`
	SynthScript    string `koanf:"synth_script"`
}

type StatusConfig struct {
	Addr string `koanf:"addr"`
}

type TraceConfig struct {
	DSN string `koanf:"dsn"`
}

type ServicesConfig struct {
	WhisperControlURL string `koanf:"whisper_control_url"`
}

var defaults = map[string]any{
	"metrics_dir":    "metrics",
	"mode":           ModeNative,
	"stage_timeout":  "30s",
	"pause":          "1s",
	"max_iterations": 0,
	"history_turns":  0,

	"texts.greeting":     prompts.Greeting,
	"texts.farewell":     prompts.Farewell,
	"texts.fallback":     prompts.Fallback,
	"texts.exit_phrases": []string{"goodbye", "bye"},

	"language.user":  "te",
	"language.model": "en",

	"capture.recorder":         "arecord",
	"capture.duration":         "8s",
	"capture.sample_rate":      16000,
	"capture.energy_threshold": 0.01,
	"capture.asr_url":          "http://localhost:8178",
	"capture.asr_endpoint":     "/inference",
	"capture.noise_filter":     true,

	"translate.url": "http://localhost:5000",

	"generate.engine":        "openai",
	"generate.model":         "ft:gpt-3.5-turbo-0125:personal::9NbLcpu1:ckpt-step-60",
	"generate.system_prompt": prompts.DefaultSystem,
	"generate.max_tokens":    150,
	"generate.temperature":   0.7,

	"speech.engine":              "openai",
	"speech.url":                 "https://api.openai.com",
	"speech.model":               "tts-1",
	"speech.voice":               "nova",
	"speech.format":              "mp3",
	"speech.piper_url":           "http://localhost:5100",
	"speech.piper_voice":         "te_IN-venkatesh-medium",
	"speech.elevenlabs_voice_id": "21m00Tcm4TlvDq8ikWAM",
	"speech.elevenlabs_model_id": "eleven_multilingual_v2",

	"playback.player":       "ffplay",
	"playback.video_player": "ffplay",
	"playback.video":        "MDay.mp4",
	"playback.video_filter": "transpose=2",

	"command.capture_env":     "env1",
	"command.generate_env":    "env2",
	"command.capture_script":  "S2T_fixed.py",
	"command.generate_script": "NLP_fixed.py",
	"command.synth_script":    "T2S_fixed.py",
}

// Load reads configuration from an optional YAML file and FRAME_* environment
// variables, in that order. A missing file is not an error. Nested keys use a
// double underscore in the environment (FRAME_CAPTURE__DURATION).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("FRAME_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FRAME_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.APIKey = tpfenv.Str(CredentialEnv, "")
	cfg.ElevenLabsAPIKey = tpfenv.Str("ELEVENLABS_API_KEY", "")
	return &cfg, nil
}

// ResolvePaths anchors relative paths at Home, defaulting Home to base.
func (c *Config) ResolvePaths(base string) {
	if c.Home == "" {
		c.Home = base
	}
	c.MetricsDir = c.abs(c.MetricsDir)
	c.Playback.Video = c.abs(c.Playback.Video)
	c.Command.CaptureEnv = c.abs(c.Command.CaptureEnv)
	c.Command.GenerateEnv = c.abs(c.Command.GenerateEnv)
	c.Command.CaptureScript = c.abs(c.Command.CaptureScript)
	c.Command.GenerateScript = c.abs(c.Command.GenerateScript)
	c.Command.SynthScript = c.abs(c.Command.SynthScript)
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// Validate checks the local environment the loop depends on. lookPath
// resolves tool names; pass exec.LookPath outside tests.
func (c *Config) Validate(lookPath func(string) (string, error)) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s is not set", ErrMissingCredential, CredentialEnv)
	}
	if err := requireDir(c.Home); err != nil {
		return err
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("stage_timeout must be positive, got %s", c.StageTimeout)
	}

	switch c.Mode {
	case ModeCommand:
		for _, dir := range []string{c.Command.CaptureEnv, c.Command.GenerateEnv} {
			if err := requireFile(PythonPath(dir)); err != nil {
				return err
			}
		}
	case ModeNative:
		if _, err := lookPath(c.Capture.Recorder); err != nil {
			return fmt.Errorf("%w: recorder %q: %v", ErrMissingPath, c.Capture.Recorder, err)
		}
		if _, err := lookPath(c.Playback.Player); err != nil {
			return fmt.Errorf("%w: player %q: %v", ErrMissingPath, c.Playback.Player, err)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// PythonPath returns the interpreter inside a virtual environment directory.
func PythonPath(envDir string) string {
	return filepath.Join(envDir, "bin", "python")
}

func requireDir(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingPath, p)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMissingPath, p)
	}
	return nil
}

func requireFile(p string) error {
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingPath, p)
	}
	return nil
}
