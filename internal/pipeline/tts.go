package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// AudioSynthesizer renders text to an encoded audio clip.
type AudioSynthesizer interface {
	SynthesizeAudio(ctx context.Context, text string) ([]byte, error)
	// Format is the file extension of the returned clip.
	Format() string
}

// Speaker plays an encoded clip to completion.
type Speaker interface {
	Play(ctx context.Context, data []byte, format string) error
}

// SpeechSynthesizer translates a reply into the listener's language,
// synthesizes it and plays it.
type SpeechSynthesizer struct {
	backends   *Router[AudioSynthesizer]
	engine     string
	translator Translator
	speaker    Speaker
	model      string
	spoken     string
}

type SynthesizerConfig struct {
	Backends   map[string]AudioSynthesizer
	Engine     string
	Fallback   string
	Translator Translator // nil skips translation
	Speaker    Speaker
	Model      string // language the reply is written in
	Spoken     string // language it is spoken in
}

func NewSpeechSynthesizer(cfg SynthesizerConfig) *SpeechSynthesizer {
	return &SpeechSynthesizer{
		backends:   NewRouter(cfg.Backends, cfg.Fallback),
		engine:     cfg.Engine,
		translator: cfg.Translator,
		speaker:    cfg.Speaker,
		model:      cfg.Model,
		spoken:     cfg.Spoken,
	}
}

func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("synthesize: empty text")
	}

	spoken := text
	if s.translator != nil {
		translated, err := s.translator.Translate(ctx, text, s.model, s.spoken)
		if err != nil {
			return fmt.Errorf("translate reply: %w", err)
		}
		spoken = translated
	}

	backend, err := s.backends.Route(s.engine)
	if err != nil {
		return err
	}
	clip, err := backend.SynthesizeAudio(ctx, spoken)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	slog.Debug("tts_audio", "engine", s.engine, "bytes", len(clip), "format", backend.Format())

	if err = s.speaker.Play(ctx, clip, backend.Format()); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// --- OpenAI-compatible backend (api.openai.com, Kokoro, Orpheus: any /v1/audio/speech) ---

type openaiSynthesizer struct {
	url    string
	apiKey string
	model  string
	voice  string
	format string
	speed  float64
	client *http.Client
}

func NewOpenAISynthesizer(url, apiKey, model, voice, format string, speed float64, client *http.Client) AudioSynthesizer {
	if format == "" {
		format = "mp3"
	}
	return &openaiSynthesizer{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		model:  model,
		voice:  voice,
		format: format,
		speed:  speed,
		client: client,
	}
}

func (o *openaiSynthesizer) Format() string { return o.format }

func (o *openaiSynthesizer) SynthesizeAudio(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(struct {
		Input          string  `json:"input"`
		Model          string  `json:"model"`
		Voice          string  `json:"voice"`
		Speed          float64 `json:"speed,omitempty"`
		ResponseFormat string  `json:"response_format"`
	}{Input: text, Model: o.model, Voice: o.voice, Speed: o.speed, ResponseFormat: o.format})
	if err != nil {
		return nil, fmt.Errorf("marshal openai tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create openai tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	return doTTSRequest(o.client, req)
}

// --- ElevenLabs backend (multilingual cloud voices, MP3) ---

type elevenlabsSynthesizer struct {
	url     string
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

const elevenLabsURL = "https://api.elevenlabs.io"

func NewElevenLabsSynthesizer(apiKey, voiceID, modelID string, client *http.Client) AudioSynthesizer {
	return &elevenlabsSynthesizer{url: elevenLabsURL, apiKey: apiKey, voiceID: voiceID, modelID: modelID, client: client}
}

func (e *elevenlabsSynthesizer) Format() string { return "mp3" }

func (e *elevenlabsSynthesizer) SynthesizeAudio(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.url, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	return doTTSRequest(e.client, req)
}

// --- Piper backend (local neural TTS sidecar, WAV) ---

type piperSynthesizer struct {
	url    string
	voice  string
	client *http.Client
}

func NewPiperSynthesizer(url, voice string, client *http.Client) AudioSynthesizer {
	return &piperSynthesizer{url: strings.TrimRight(url, "/"), voice: voice, client: client}
}

func (p *piperSynthesizer) Format() string { return "wav" }

func (p *piperSynthesizer) SynthesizeAudio(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return doTTSRequest(p.client, req)
}

func doTTSRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("tts", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}
	return data, nil
}
