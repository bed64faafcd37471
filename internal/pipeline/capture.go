package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/talking-photo-frame/internal/audio"
	"github.com/hubenschmidt/talking-photo-frame/internal/metrics"
)

// Recorder captures one utterance from the microphone as a WAV clip.
type Recorder interface {
	Record(ctx context.Context) ([]byte, error)
}

// CommandRecorder records a fixed-length mono clip with arecord or sox rec.
type CommandRecorder struct {
	bin        string
	device     string
	duration   time.Duration
	sampleRate int
}

func NewCommandRecorder(bin, device string, duration time.Duration, sampleRate int) *CommandRecorder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &CommandRecorder{bin: bin, device: device, duration: duration, sampleRate: sampleRate}
}

func (r *CommandRecorder) seconds() int {
	return max(1, int(math.Ceil(r.duration.Seconds())))
}

func (r *CommandRecorder) args(path string) []string {
	rate := strconv.Itoa(r.sampleRate)
	secs := strconv.Itoa(r.seconds())

	if filepath.Base(r.bin) == "rec" {
		return []string{"-q", "-r", rate, "-c", "1", "-b", "16", path, "trim", "0", secs}
	}
	args := []string{"-q"}
	if r.device != "" {
		args = append(args, "-D", r.device)
	}
	return append(args, "-f", "S16_LE", "-r", rate, "-c", "1", "-d", secs, "-t", "wav", path)
}

// Record writes to a temp file so the recorder can finalize the WAV header.
func (r *CommandRecorder) Record(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "tpf-capture-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "input.wav")

	cmd := exec.CommandContext(ctx, r.bin, r.args(path)...)
	if r.device != "" && filepath.Base(r.bin) == "rec" {
		cmd.Env = append(os.Environ(), "AUDIODEV="+r.device)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(r.bin), err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return data, nil
}

// SpeechCapturer records, transcribes and translates one utterance.
// Silence and noise produce an empty result rather than an error.
type SpeechCapturer struct {
	recorder    Recorder
	asr         Transcriber
	translator  Translator
	gate        audio.Gate
	filterNoise bool
	spoken      string
	model       string
}

type CapturerConfig struct {
	Recorder    Recorder
	ASR         Transcriber
	Translator  Translator // nil skips translation
	Gate        audio.Gate
	FilterNoise bool
	Spoken      string // language the user speaks
	Model       string // language the generator is prompted in
}

func NewSpeechCapturer(cfg CapturerConfig) *SpeechCapturer {
	return &SpeechCapturer{
		recorder:    cfg.Recorder,
		asr:         cfg.ASR,
		translator:  cfg.Translator,
		gate:        cfg.Gate,
		filterNoise: cfg.FilterNoise,
		spoken:      cfg.Spoken,
		model:       cfg.Model,
	}
}

func (c *SpeechCapturer) Capture(ctx context.Context) (string, error) {
	clip, err := c.recorder.Record(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	st, err := audio.Analyze(clip)
	switch {
	case errors.Is(err, audio.ErrInvalidWAV):
		slog.Warn("capture_unreadable", "bytes", len(clip))
	case err != nil:
		return "", err
	case c.gate.Silent(st):
		metrics.SilenceGated.Inc()
		slog.Debug("capture_silent", "rms", st.RMS, "duration", st.Duration)
		return "", nil
	}

	text, err := c.asr.Transcribe(ctx, clip)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return "", nil
	}
	if c.filterNoise && IsNoiseTranscript(text) {
		metrics.NoiseFiltered.Inc()
		slog.Debug("transcript_filtered", "text", text)
		return "", nil
	}
	slog.Info("transcript", "text", text, "language", c.spoken)

	if c.translator == nil {
		return text, nil
	}
	translated, err := c.translator.Translate(ctx, text, c.spoken, c.model)
	if err != nil {
		return "", fmt.Errorf("translate input: %w", err)
	}
	return translated, nil
}
