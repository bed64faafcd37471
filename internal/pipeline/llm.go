package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Generator produces a reply to the recognized text.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// GeneratorRouter dispatches to the configured engine and falls back to the
// default engine when it is not registered.
type GeneratorRouter struct {
	*Router[Generator]
	engine string
}

func NewGeneratorRouter(backends map[string]Generator, engine, fallback string) *GeneratorRouter {
	return &GeneratorRouter{Router: NewRouter(backends, fallback), engine: engine}
}

func (r *GeneratorRouter) Generate(ctx context.Context, text string) (string, error) {
	backend, err := r.Route(r.engine)
	if err != nil {
		return "", err
	}
	return backend.Generate(ctx, text)
}

// GenerateOptions tunes a chat completion.
type GenerateOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// OpenAIGenerator requests one non-streamed chat completion per turn.
type OpenAIGenerator struct {
	client openai.Client
	opts   GenerateOptions
}

// NewOpenAIGenerator creates a generator against api.openai.com, or baseURL
// when set (any OpenAI-compatible server). The SDK's own retries are disabled.
func NewOpenAIGenerator(apiKey, baseURL string, opts GenerateOptions, extra ...option.RequestOption) *OpenAIGenerator {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, extra...)
	return &OpenAIGenerator{client: openai.NewClient(reqOpts...), opts: opts}
}

func (g *OpenAIGenerator) params(text string) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.opts.SystemPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(g.opts.Temperature),
	}
	if g.opts.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(g.opts.MaxTokens))
	}
	return p
}

func (g *OpenAIGenerator) Generate(ctx context.Context, text string) (string, error) {
	start := time.Now()

	resp, err := g.client.Chat.Completions.New(ctx, g.params(text))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Info("llm_reply",
		"model", g.opts.Model,
		"latency_ms", time.Since(start).Milliseconds(),
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return reply, nil
}
