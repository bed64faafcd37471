package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterFallback(t *testing.T) {
	r := NewRouter(map[string]string{"openai": "a", "agent": "b"}, "openai")

	got, err := r.Route("agent")
	require.NoError(t, err)
	require.Equal(t, "b", got)

	got, err = r.Route("unknown")
	require.NoError(t, err)
	require.Equal(t, "a", got)

	require.True(t, r.Has("agent"))
	require.False(t, r.Has("unknown"))
	require.Equal(t, []string{"agent", "openai"}, r.Engines())
}

func TestRouterNoBackend(t *testing.T) {
	r := NewRouter(map[string]int{}, "missing")
	_, err := r.Route("x")
	require.Error(t, err)
}

func TestIsNoiseTranscript(t *testing.T) {
	for _, text := range []string{"", "  ", "[BLANK_AUDIO]", "*static*", "(music)", "Um", "hmm"} {
		require.True(t, IsNoiseTranscript(text), text)
	}
	for _, text := range []string{"How are you, grandma?", "bye", "నమస్కారం"} {
		require.False(t, IsNoiseTranscript(text), text)
	}
}
