package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1715000000,
  "model": "ft:gpt-3.5-turbo-0125:personal::9NbLcpu1:ckpt-step-60",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "  I'm doing well, my dear.  "}}],
  "usage": {"prompt_tokens": 40, "completion_tokens": 8, "total_tokens": 48}
}`

func TestOpenAIGenerator(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("sk-test", srv.URL+"/", GenerateOptions{
		Model:        "ft:gpt-3.5-turbo-0125:personal::9NbLcpu1:ckpt-step-60",
		SystemPrompt: "You are a grandmother.",
		MaxTokens:    150,
		Temperature:  0.7,
	})

	reply, err := g.Generate(context.Background(), "How are you?")
	require.NoError(t, err)
	require.Equal(t, "I'm doing well, my dear.", reply)

	require.Equal(t, "ft:gpt-3.5-turbo-0125:personal::9NbLcpu1:ckpt-step-60", got["model"])
	require.EqualValues(t, 150, got["max_tokens"])
	require.InDelta(t, 0.7, got["temperature"], 1e-9)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
	require.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIGeneratorNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("sk-test", srv.URL+"/", GenerateOptions{Model: "m"})
	_, err := g.Generate(context.Background(), "hi")
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) { return s.reply, s.err }

func TestGeneratorRouter(t *testing.T) {
	backends := map[string]Generator{
		"openai": stubGenerator{reply: "from openai"},
		"agent":  stubGenerator{err: errors.New("agent down")},
	}

	got, err := NewGeneratorRouter(backends, "missing", "openai").Generate(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "from openai", got)

	_, err = NewGeneratorRouter(backends, "agent", "openai").Generate(context.Background(), "x")
	require.ErrorContains(t, err, "agent down")
}
