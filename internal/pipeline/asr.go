package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/hubenschmidt/talking-photo-frame/internal/audio"
)

// Transcriber turns a WAV clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// WhisperClient posts WAV clips as multipart form data to a whisper.cpp
// compatible server. Servers differ only in endpoint path (/inference for
// whisper.cpp, /transcribe for the ROCm build).
type WhisperClient struct {
	url      string
	endpoint string
	language string
	client   *http.Client
}

// NewWhisperClient creates a recognizer. language is the spoken language
// hint ("te"); empty lets the server auto-detect.
func NewWhisperClient(url, endpoint, language string, client *http.Client) *WhisperClient {
	if endpoint == "" {
		endpoint = "/inference"
	}
	return &WhisperClient{
		url:      strings.TrimRight(url, "/"),
		endpoint: endpoint,
		language: language,
		client:   client,
	}
}

// Warmup sends one second of silence so the model is loaded before the
// first real utterance.
func (c *WhisperClient) Warmup(ctx context.Context) error {
	_, err := c.Transcribe(ctx, audio.Silence(1000, 16000))
	if err != nil {
		return fmt.Errorf("whisper warmup: %w", err)
	}
	return nil
}

// Transcribe returns the recognized text, trimmed.
func (c *WhisperClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	body, contentType, err := c.buildForm(wav)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("whisper", resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func (c *WhisperClient) buildForm(wav []byte) (io.Reader, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}

	fields := map[string]string{"response_format": "json", "temperature": "0.0"}
	if c.language != "" {
		fields["language"] = c.language
	}
	for k, v := range fields {
		if err = writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
