package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentGenerator runs a single-turn agent through openai-agents-go and
// collects the streamed text deltas.
type AgentGenerator struct {
	provider agents.ModelProvider
	opts     GenerateOptions
}

func NewAgentGenerator(provider agents.ModelProvider, opts GenerateOptions) *AgentGenerator {
	return &AgentGenerator{provider: provider, opts: opts}
}

// NewOpenAIAgentProvider creates a chat-completions provider for the agent runner.
func NewOpenAIAgentProvider(apiKey, baseURL string) agents.ModelProvider {
	params := agents.OpenAIProviderParams{
		APIKey:       param.NewOpt(apiKey),
		UseResponses: param.NewOpt(false),
	}
	if baseURL != "" {
		params.BaseURL = param.NewOpt(baseURL)
	}
	return agents.NewOpenAIProvider(params)
}

func (a *AgentGenerator) agent() *agents.Agent {
	settings := modelsettings.ModelSettings{
		Temperature: param.NewOpt(a.opts.Temperature),
	}
	if a.opts.MaxTokens > 0 {
		settings.MaxTokens = param.NewOpt(int64(a.opts.MaxTokens))
	}
	return agents.New("grandmother").
		WithInstructions(a.opts.SystemPrompt).
		WithModel(a.opts.Model).
		WithModelSettings(settings)
}

func (a *AgentGenerator) Generate(ctx context.Context, text string) (string, error) {
	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	events, errCh, err := runner.RunStreamedChan(ctx, a.agent(), text)
	if err != nil {
		return "", fmt.Errorf("agent stream start: %w", err)
	}

	var reply strings.Builder
	for ev := range events {
		appendDelta(ev, &reply)
	}
	if streamErr := <-errCh; streamErr != nil {
		return "", fmt.Errorf("agent stream: %w", streamErr)
	}
	return strings.TrimSpace(reply.String()), nil
}

func appendDelta(ev agents.StreamEvent, reply *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok || raw.Data.Type != "response.output_text.delta" {
		return
	}
	reply.WriteString(raw.Data.Delta)
}
