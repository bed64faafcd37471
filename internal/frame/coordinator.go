// Package frame runs the conversation loop: capture, generate and speak,
// with per-stage latency recorded into a session log.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/talking-photo-frame/internal/analyzer"
	"github.com/hubenschmidt/talking-photo-frame/internal/metrics"
	"github.com/hubenschmidt/talking-photo-frame/internal/playback"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
	"github.com/hubenschmidt/talking-photo-frame/internal/trace"
)

const (
	DefaultStageTimeout = 30 * time.Second
	DefaultPause        = time.Second
)

var DefaultExitPhrases = []string{"goodbye", "bye"}

// Video is a background clip that loops independently of the conversation.
type Video interface {
	Start() error
	Stop()
}

// LogWriter persists a closed session and returns where it went.
type LogWriter interface {
	Write(sess *session.Session) (string, error)
}

// Config wires the coordinator. Capture, Generate, Synthesize and Log are required.
type Config struct {
	Capture    Capturer
	Generate   Generator
	Synthesize Synthesizer
	Video      Video
	Log        LogWriter
	Tracer     *trace.Tracer

	StageTimeout time.Duration
	// Pause is the delay after each completed interaction.
	Pause time.Duration

	Greeting    string
	Farewell    string
	Fallback    string
	ExitPhrases []string
	// HistoryTurns > 0 prefixes generator input with that many prior exchanges.
	HistoryTurns int

	OnEvent func(Event)
	Now     func() time.Time
}

// Coordinator owns one session for the duration of Run.
type Coordinator struct {
	cfg     Config
	history []turn
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Capture == nil || cfg.Generate == nil || cfg.Synthesize == nil {
		return nil, errors.New("frame: capture, generate and synthesize stages are required")
	}
	if cfg.Log == nil {
		return nil, errors.New("frame: log writer is required")
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if len(cfg.ExitPhrases) == 0 {
		cfg.ExitPhrases = DefaultExitPhrases
	}
	phrases := make([]string, 0, len(cfg.ExitPhrases))
	for _, p := range cfg.ExitPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	cfg.ExitPhrases = phrases
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg}, nil
}

func (c *Coordinator) now() time.Time { return c.cfg.Now() }

// IsExit reports whether text contains an exit phrase, ignoring case.
func (c *Coordinator) IsExit(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range c.cfg.ExitPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Run greets the user, starts the video and loops until an exit phrase,
// maxIterations completed interactions (0 = unbounded), or ctx is done.
// The session log is written on every exit path, including a panic, which
// is re-raised after the log is on disk. The returned error is the cause of
// termination: nil for an exit phrase or the bound, ctx.Err() on interrupt.
func (c *Coordinator) Run(ctx context.Context, maxIterations int) (path string, err error) {
	sess := session.New(c.now())
	metrics.SessionActive.Set(1)
	slog.Info("session_start", "max_iterations", maxIterations, "trace_session", c.cfg.Tracer.SessionID())

	defer func() {
		r := recover()
		if r != nil {
			slog.Error("loop_panic", "panic", r)
			c.emit(Event{Type: EventError, Error: fmt.Sprint(r)})
		}

		var werr error
		path, werr = c.shutdown(sess)
		if werr != nil {
			if err == nil {
				err = werr
			} else {
				slog.Error("write session log", "error", werr)
			}
		}
		if r != nil {
			panic(r)
		}
	}()

	c.startup(ctx)
	return "", c.loop(ctx, sess, maxIterations)
}

func (c *Coordinator) startup(ctx context.Context) {
	if c.cfg.Greeting != "" {
		c.emit(Event{Type: EventGreeting, Text: c.cfg.Greeting})
		c.speak(ctx, c.cfg.Greeting)
		c.sleep(ctx, c.cfg.Pause)
	}
	if c.cfg.Video == nil {
		return
	}
	if err := c.cfg.Video.Start(); err != nil {
		if errors.Is(err, playback.ErrNoVideo) {
			slog.Warn("video not found, continuing without it", "error", err)
			return
		}
		slog.Error("video start failed", "error", err)
	}
}

func (c *Coordinator) speak(ctx context.Context, text string) stageResult {
	return c.invoke(ctx, StageSynthesize, text, c.cfg.StageTimeout, func(ctx context.Context) (string, error) {
		return "", c.cfg.Synthesize.Synthesize(ctx, text)
	})
}

func (c *Coordinator) loop(ctx context.Context, sess *session.Session, maxIterations int) error {
	iteration := 0
	for maxIterations <= 0 || iteration < maxIterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := c.iterate(ctx, sess, iteration)
		if err != nil {
			return err
		}
		switch done {
		case iterSkipped:
			continue
		case iterExit:
			return nil
		}

		iteration++
		if maxIterations > 0 && iteration >= maxIterations {
			break
		}
		if err = c.sleep(ctx, c.cfg.Pause); err != nil {
			return err
		}
	}
	slog.Info("iteration_limit_reached", "iterations", iteration)
	return nil
}

type iterOutcome int

const (
	iterCompleted iterOutcome = iota
	iterSkipped
	iterExit
)

func (c *Coordinator) iterate(ctx context.Context, sess *session.Session, iteration int) (iterOutcome, error) {
	in := session.Interaction{Iteration: iteration, Timestamp: c.now()}

	heard := c.invoke(ctx, StageCapture, "", c.cfg.StageTimeout, c.cfg.Capture.Capture)
	if err := ctx.Err(); err != nil {
		return iterSkipped, err
	}
	if heard.Text == "" {
		metrics.EmptyCaptures.Inc()
		slog.Info("capture_empty", "iteration", iteration)
		if heard.Err != nil {
			// Back off after a failed capture.
			return iterSkipped, c.sleep(ctx, c.cfg.Pause)
		}
		return iterSkipped, nil
	}

	runID := c.cfg.Tracer.StartRun(iteration)
	c.span(runID, StageCapture, "", heard)

	in.S2TLatency = session.Seconds(heard.Elapsed)
	in.UserInput = heard.Text
	slog.Info("user_said", "iteration", iteration, "text", heard.Text, "s2t_s", *in.S2TLatency)
	c.emit(Event{Type: EventTranscript, Iteration: iteration, Text: heard.Text, S2T: in.S2TLatency})

	if c.IsExit(heard.Text) {
		farewell := c.speak(ctx, c.cfg.Farewell)
		c.span(runID, StageSynthesize, c.cfg.Farewell, farewell)
		in.ExitTriggered = true
		sess.Append(in)
		metrics.InteractionsTotal.Inc()
		c.cfg.Tracer.EndRun(runID, ms(heard.Elapsed+farewell.Elapsed), heard.Text, c.cfg.Farewell, "exit")
		slog.Info("exit_phrase", "iteration", iteration, "text", heard.Text)
		c.emit(Event{Type: EventExit, Iteration: iteration, Text: heard.Text})
		return iterExit, nil
	}

	input := c.formatInput(heard.Text)
	reply := c.invoke(ctx, StageGenerate, input, c.cfg.StageTimeout, func(ctx context.Context) (string, error) {
		return c.cfg.Generate.Generate(ctx, input)
	})
	c.span(runID, StageGenerate, input, reply)
	if err := ctx.Err(); err != nil {
		c.cfg.Tracer.EndRun(runID, 0, heard.Text, "", "canceled")
		return iterSkipped, err
	}

	response, status := reply.Text, "ok"
	if response == "" {
		response, status = c.cfg.Fallback, "fallback"
		metrics.FallbackReplies.Inc()
		slog.Warn("generation_fallback", "iteration", iteration, "error", reply.Err)
	}
	in.NLPLatency = session.Seconds(reply.Elapsed)
	in.Response = response
	c.emit(Event{Type: EventResponse, Iteration: iteration, Text: response, Fallback: status == "fallback", NLP: in.NLPLatency})

	spoken := c.speak(ctx, response)
	c.span(runID, StageSynthesize, response, spoken)
	if err := ctx.Err(); err != nil {
		c.cfg.Tracer.EndRun(runID, 0, heard.Text, response, "canceled")
		return iterSkipped, err
	}
	if spoken.Err != nil {
		c.emit(Event{Type: EventError, Iteration: iteration, Stage: StageSynthesize, Error: spoken.Err.Error()})
	}
	in.T2SLatency = session.Seconds(spoken.Elapsed)

	total := *in.S2TLatency + *in.NLPLatency + *in.T2SLatency
	in.TotalLatency = &total
	sess.Append(in)
	c.remember(heard.Text, response)

	metrics.InteractionsTotal.Inc()
	metrics.InteractionDuration.Observe(total)
	c.cfg.Tracer.EndRun(runID, total*1000, heard.Text, response, status)
	slog.Info("interaction_done",
		"iteration", iteration,
		"s2t_s", *in.S2TLatency,
		"nlp_s", *in.NLPLatency,
		"t2s_s", *in.T2SLatency,
		"total_s", total,
		"status", status,
	)
	c.emit(Event{
		Type:      EventMetrics,
		Iteration: iteration,
		S2T:       in.S2TLatency,
		NLP:       in.NLPLatency,
		T2S:       in.T2SLatency,
		Total:     in.TotalLatency,
	})
	return iterCompleted, nil
}

func (c *Coordinator) span(runID string, stage Stage, input string, res stageResult) {
	if runID == "" {
		return
	}
	status, errMsg := "ok", ""
	if res.Err != nil {
		status, errMsg = "error", res.Err.Error()
	}
	c.cfg.Tracer.RecordSpan(runID, string(stage), res.Start, ms(res.Elapsed), input, res.Text, status, errMsg)
}

// sleep waits for d or until ctx is done.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// shutdown stops the video, closes and writes the session, and logs a summary.
func (c *Coordinator) shutdown(sess *session.Session) (string, error) {
	if c.cfg.Video != nil {
		c.cfg.Video.Stop()
	}
	metrics.SessionActive.Set(0)

	sess.Close(c.now())
	path, err := c.cfg.Log.Write(sess)
	if err != nil {
		return "", fmt.Errorf("write session log: %w", err)
	}
	c.cfg.Tracer.EndSession(sess.End, len(sess.Interactions), path)

	logSummary(sess, path)
	c.emit(Event{Type: EventSessionEnd, Iteration: len(sess.Interactions), Path: path})
	return path, nil
}

func logSummary(sess *session.Session, path string) {
	r := analyzer.Analyze(sess)
	attrs := []any{"path", path, "interactions", r.Interactions}
	for _, l := range []struct {
		key string
		st  *analyzer.Stats
	}{{"avg_s2t_s", r.S2T}, {"avg_nlp_s", r.NLP}, {"avg_t2s_s", r.T2S}} {
		if l.st != nil {
			attrs = append(attrs, l.key, l.st.Mean)
		}
	}
	if r.Total != nil {
		attrs = append(attrs, "min_total_s", r.Total.Min, "max_total_s", r.Total.Max)
	}
	slog.Info("session_summary", attrs...)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
