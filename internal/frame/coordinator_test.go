package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/talking-photo-frame/internal/playback"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
	"github.com/hubenschmidt/talking-photo-frame/internal/trace"
)

type scriptedCapture struct {
	inputs []string
	next   int
}

func (s *scriptedCapture) Capture(ctx context.Context) (string, error) {
	if s.next >= len(s.inputs) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	text := s.inputs[s.next]
	s.next++
	return text, nil
}

type fakeGenerator struct {
	reply  string
	err    error
	delay  time.Duration
	inputs []string
}

func (g *fakeGenerator) Generate(_ context.Context, text string) (string, error) {
	g.inputs = append(g.inputs, text)
	if g.delay > 0 {
		time.Sleep(g.delay) // ignores ctx on purpose
	}
	return g.reply, g.err
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (s *fakeSynth) Synthesize(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.err
}

type memLog struct {
	sess *session.Session
}

func (m *memLog) Write(sess *session.Session) (string, error) {
	m.sess = sess
	return "mem://" + session.FileName(sess.End), nil
}

type fakeVideo struct {
	started, stopped bool
	err              error
}

func (v *fakeVideo) Start() error { v.started = true; return v.err }
func (v *fakeVideo) Stop()        { v.stopped = true }

func newTestCoordinator(t *testing.T, capture Capturer, gen Generator, synth Synthesizer, log *memLog, mutate ...func(*Config)) *Coordinator {
	t.Helper()
	cfg := Config{
		Capture:      capture,
		Generate:     gen,
		Synthesize:   synth,
		Log:          log,
		StageTimeout: time.Second,
		Farewell:     "Goodbye my dear. I love you!",
		Fallback:     "I didn't quite catch that, dear.",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestIsExit(t *testing.T) {
	c := newTestCoordinator(t, &scriptedCapture{}, &fakeGenerator{}, &fakeSynth{}, &memLog{})
	for _, text := range []string{"Bye now", "goodbyeee", "GOODBYE grandma", "ok bye"} {
		require.True(t, c.IsExit(text), text)
	}
	for _, text := range []string{"hello", "good night", "b y e"} {
		require.False(t, c.IsExit(text), text)
	}
}

func TestRunExitPhrase(t *testing.T) {
	synth := &fakeSynth{}
	log := &memLog{}
	video := &fakeVideo{}
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"hello grandma", "", "Bye now"}},
		&fakeGenerator{reply: "  Hello my dear!  "},
		synth, log,
		func(cfg *Config) {
			cfg.Greeting = "Hello! I'm so happy to talk with you."
			cfg.Video = video
		},
	)

	path, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Contains(t, path, "metrics_v1_")

	require.True(t, video.started)
	require.True(t, video.stopped)
	require.Equal(t, []string{
		"Hello! I'm so happy to talk with you.",
		"Hello my dear!",
		"Goodbye my dear. I love you!",
	}, synth.spoken)

	sess := log.sess
	require.False(t, sess.End.IsZero())
	require.Len(t, sess.Interactions, 2)

	first := sess.Interactions[0]
	require.Equal(t, 0, first.Iteration)
	require.Equal(t, "Hello my dear!", first.Response)
	require.True(t, first.Completed())
	require.InDelta(t, *first.S2TLatency+*first.NLPLatency+*first.T2SLatency, *first.TotalLatency, 1e-9)

	exit := sess.Interactions[1]
	require.Equal(t, 1, exit.Iteration, "empty capture does not advance the counter")
	require.True(t, exit.ExitTriggered)
	require.Equal(t, "Bye now", exit.UserInput)
	require.Empty(t, exit.Response)
	require.Nil(t, exit.NLPLatency)
}

func TestRunFallbackReply(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"empty": {reply: "   "},
		"error": {err: errors.New("api down")},
	} {
		t.Run(name, func(t *testing.T) {
			synth := &fakeSynth{}
			log := &memLog{}
			c := newTestCoordinator(t, &scriptedCapture{inputs: []string{"tell me a story"}}, gen, synth, log)

			_, err := c.Run(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, log.sess.Interactions, 1)
			require.Equal(t, "I didn't quite catch that, dear.", log.sess.Interactions[0].Response)
			require.Equal(t, []string{"I didn't quite catch that, dear."}, synth.spoken)
		})
	}
}

func TestRunSynthesisFailureIsWarning(t *testing.T) {
	log := &memLog{}
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"one", "two"}},
		&fakeGenerator{reply: "reply"},
		&fakeSynth{err: errors.New("speaker unplugged")},
		log,
	)

	_, err := c.Run(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, log.sess.Interactions, 2)
	require.NotNil(t, log.sess.Interactions[1].T2SLatency)
}

func TestRunMaxIterations(t *testing.T) {
	log := &memLog{}
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"a", "b", "c", "d"}},
		&fakeGenerator{reply: "ok"},
		&fakeSynth{}, log,
	)
	_, err := c.Run(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, log.sess.Interactions, 3)
	for i, in := range log.sess.Interactions {
		require.Equal(t, i, in.Iteration)
	}
}

func TestStageTimeout(t *testing.T) {
	log := &memLog{}
	gen := &fakeGenerator{reply: "too late", delay: 2 * time.Second}
	c := newTestCoordinator(t, &scriptedCapture{inputs: []string{"hello"}}, gen, &fakeSynth{}, log,
		func(cfg *Config) { cfg.StageTimeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)

	in := log.sess.Interactions[0]
	require.Equal(t, "I didn't quite catch that, dear.", in.Response)
	require.Less(t, *in.NLPLatency, 1.0)
}

func TestInvokeTrimsAndFails(t *testing.T) {
	c := newTestCoordinator(t, &scriptedCapture{}, &fakeGenerator{}, &fakeSynth{}, &memLog{})

	res := c.invoke(context.Background(), StageGenerate, "x", time.Second, func(context.Context) (string, error) {
		return "\n reply \n", nil
	})
	require.NoError(t, res.Err)
	require.Equal(t, "reply", res.Text)

	res = c.invoke(context.Background(), StageGenerate, "x", time.Second, func(context.Context) (string, error) {
		return "partial", errors.New("exit status 1")
	})
	require.Error(t, res.Err)
	require.Empty(t, res.Text)

	res = c.invoke(context.Background(), StageCapture, "", 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	require.Equal(t, "timeout", classify(res.Err))
}

func TestRunWritesLogOnCancel(t *testing.T) {
	log := &memLog{}
	video := &fakeVideo{}
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"hello"}},
		&fakeGenerator{reply: "hi"},
		&fakeSynth{}, log,
		func(cfg *Config) { cfg.Video = video },
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	path, err := c.Run(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, path)
	require.NotNil(t, log.sess)
	require.Len(t, log.sess.Interactions, 1)
	require.True(t, video.stopped)
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, string) (string, error) {
	panic("model client nil")
}

func TestRunWritesLogOnPanic(t *testing.T) {
	log := &memLog{}
	c := newTestCoordinator(t, &scriptedCapture{inputs: []string{"hello"}}, panicGenerator{}, &fakeSynth{}, log)

	require.PanicsWithValue(t, "model client nil", func() {
		c.Run(context.Background(), 0)
	})
	require.NotNil(t, log.sess)
	require.False(t, log.sess.End.IsZero())
	require.Empty(t, log.sess.Interactions)
}

func TestRunMissingVideo(t *testing.T) {
	log := &memLog{}
	video := &fakeVideo{err: fmt.Errorf("%w: /srv/MDay.mp4", playback.ErrNoVideo)}
	c := newTestCoordinator(t, &scriptedCapture{inputs: []string{"bye"}}, &fakeGenerator{}, &fakeSynth{}, log,
		func(cfg *Config) { cfg.Video = video })

	_, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, log.sess.Interactions, 1)
}

func TestHistoryTurns(t *testing.T) {
	gen := &fakeGenerator{reply: "fine"}
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"one", "two", "three"}},
		gen, &fakeSynth{}, &memLog{},
		func(cfg *Config) { cfg.HistoryTurns = 1 },
	)
	_, err := c.Run(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []string{
		"one",
		"User: one\nAssistant: fine\nUser: two",
		"User: two\nAssistant: fine\nUser: three",
	}, gen.inputs)
}

func TestEvents(t *testing.T) {
	var types []string
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"hello", "goodbye"}},
		&fakeGenerator{reply: "hi"},
		&fakeSynth{}, &memLog{},
		func(cfg *Config) { cfg.OnEvent = func(ev Event) { types = append(types, ev.Type) } },
	)
	_, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []string{
		EventTranscript, EventResponse, EventMetrics,
		EventTranscript, EventExit,
		EventSessionEnd,
	}, types)
}

func TestRunTraced(t *testing.T) {
	store, err := trace.Open("file:frametrace?mode=memory&cache=shared")
	require.NoError(t, err)
	defer store.Close()

	tracer := trace.NewTracer(store, time.Now())
	c := newTestCoordinator(t,
		&scriptedCapture{inputs: []string{"hello", "bye"}},
		&fakeGenerator{reply: "hi"},
		&fakeSynth{}, &memLog{},
		func(cfg *Config) { cfg.Tracer = tracer },
	)
	_, err = c.Run(context.Background(), 0)
	require.NoError(t, err)
	tracer.Close()

	sess, runs, err := store.GetSession(tracer.SessionID())
	require.NoError(t, err)
	require.Equal(t, 2, sess.Interactions)
	require.Len(t, runs, 2)
	require.Equal(t, "ok", runs[0].Status)
	require.Equal(t, 3, runs[0].SpanCount)
	require.Equal(t, "exit", runs[1].Status)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Capture: &scriptedCapture{}, Generate: &fakeGenerator{}, Synthesize: &fakeSynth{}})
	require.Error(t, err)

	c, err := New(Config{Capture: &scriptedCapture{}, Generate: &fakeGenerator{}, Synthesize: &fakeSynth{}, Log: &memLog{}})
	require.NoError(t, err)
	require.Equal(t, DefaultStageTimeout, c.cfg.StageTimeout)
	require.Equal(t, []string{"goodbye", "bye"}, c.cfg.ExitPhrases)
}
