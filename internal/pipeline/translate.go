package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Translator converts text between ISO 639-1 languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// LibreTranslator calls a LibreTranslate-compatible /translate endpoint.
type LibreTranslator struct {
	url    string
	apiKey string
	client *http.Client
}

func NewLibreTranslator(url, apiKey string, client *http.Client) *LibreTranslator {
	return &LibreTranslator{url: strings.TrimRight(url, "/"), apiKey: apiKey, client: client}
}

// Translate returns text unchanged when source and target match.
func (t *LibreTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == target || strings.TrimSpace(text) == "" {
		return text, nil
	}

	body, err := json.Marshal(struct {
		Q      string `json:"q"`
		Source string `json:"source"`
		Target string `json:"target"`
		Format string `json:"format"`
		APIKey string `json:"api_key,omitempty"`
	}{Q: text, Source: source, Target: target, Format: "text", APIKey: t.apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("translate", resp)
	}

	var result struct {
		TranslatedText string `json:"translatedText"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	return strings.TrimSpace(result.TranslatedText), nil
}
