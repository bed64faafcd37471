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

type recordingSpeaker struct {
	data   []byte
	format string
	err    error
}

func (s *recordingSpeaker) Play(_ context.Context, data []byte, format string) error {
	s.data, s.format = data, format
	return s.err
}

func TestOpenAISynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "tts-1", req["model"])
		require.Equal(t, "nova", req["voice"])
		require.Equal(t, "mp3", req["response_format"])
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	backend := NewOpenAISynthesizer(srv.URL, "sk-test", "tts-1", "nova", "", 0, srv.Client())
	require.Equal(t, "mp3", backend.Format())

	clip, err := backend.SynthesizeAudio(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "ID3audio", string(clip))
}

func TestElevenLabsSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		require.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	backend := NewElevenLabsSynthesizer("xi-key", "voice-1", "eleven_multilingual_v2", srv.Client())
	backend.(*elevenlabsSynthesizer).url = srv.URL

	clip, err := backend.SynthesizeAudio(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "mp3", string(clip))
}

func TestSpeechSynthesizerTranslatesAndPlays(t *testing.T) {
	var spoken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/synthesize", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		spoken = req["text"]
		w.Write([]byte("RIFFwav"))
	}))
	defer srv.Close()

	speaker := &recordingSpeaker{}
	s := NewSpeechSynthesizer(SynthesizerConfig{
		Backends:   map[string]AudioSynthesizer{"piper": NewPiperSynthesizer(srv.URL, "te_IN-venkatesh-medium", srv.Client())},
		Engine:     "openai",
		Fallback:   "piper",
		Translator: fakeTranslator{},
		Speaker:    speaker,
		Model:      "en",
		Spoken:     "te",
	})

	require.NoError(t, s.Synthesize(context.Background(), "Hello dear"))
	require.Equal(t, "en>te:Hello dear", spoken)
	require.Equal(t, "RIFFwav", string(speaker.data))
	require.Equal(t, "wav", speaker.format)
}

func TestSpeechSynthesizerFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSpeechSynthesizer(SynthesizerConfig{
		Backends: map[string]AudioSynthesizer{"piper": NewPiperSynthesizer(srv.URL, "v", srv.Client())},
		Engine:   "piper",
		Speaker:  &recordingSpeaker{},
	})
	require.ErrorContains(t, s.Synthesize(context.Background(), "hi"), "tts status 500")
	require.Error(t, s.Synthesize(context.Background(), "   "))

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFF"))
	}))
	defer ok.Close()

	s = NewSpeechSynthesizer(SynthesizerConfig{
		Backends: map[string]AudioSynthesizer{"piper": NewPiperSynthesizer(ok.URL, "v", ok.Client())},
		Engine:   "piper",
		Speaker:  &recordingSpeaker{err: errors.New("no sound card")},
	})
	require.ErrorContains(t, s.Synthesize(context.Background(), "hi"), "no sound card")
}
