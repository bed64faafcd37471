package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/talking-photo-frame/internal/metrics"
)

// Stage names one external collaborator call within an iteration.
type Stage string

const (
	StageCapture    Stage = "capture"
	StageGenerate   Stage = "generate"
	StageSynthesize Stage = "synthesize"
)

// Capturer listens for one utterance and returns it as text, or "" when
// nothing usable was heard.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// Generator produces a reply to the user's text.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Synthesizer speaks text aloud and returns once playback is done.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) error
}

type stageCall func(ctx context.Context) (string, error)

type stageResult struct {
	Text    string
	Start   time.Time
	Elapsed time.Duration
	Err     error
}

type stageOutcome struct {
	text      string
	err       error
	panicked  bool
	recovered any
}

// invoke runs exactly one collaborator call under timeout. The deadline is
// enforced even if the collaborator ignores its context: the call is
// abandoned and reported as a failure. Text is trimmed and empty on failure.
// There is no retry. A panic inside the collaborator is re-raised on the
// caller's goroutine.
func (c *Coordinator) invoke(ctx context.Context, stage Stage, input string, timeout time.Duration, call stageCall) stageResult {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{panicked: true, recovered: r}
			}
		}()
		text, err := call(sctx)
		done <- stageOutcome{text: text, err: err}
	}()

	var out stageOutcome
	select {
	case out = <-done:
	case <-sctx.Done():
		out.err = sctx.Err()
	}
	if out.panicked {
		panic(out.recovered)
	}

	res := stageResult{Start: start, Elapsed: time.Since(start)}
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(res.Elapsed.Seconds())

	if out.err != nil {
		res.Err = fmt.Errorf("%s: %w", stage, out.err)
		errType := classify(out.err)
		metrics.Errors.WithLabelValues(string(stage), errType).Inc()
		slog.Warn("stage_failed",
			"stage", stage,
			"error_type", errType,
			"elapsed_s", res.Elapsed.Seconds(),
			"input_len", len(input),
			"error", out.err,
		)
		return res
	}

	res.Text = strings.TrimSpace(out.text)
	return res
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
