package trace

import (
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxIOLen = 500

type msgKind int

const (
	kindSessionCreate msgKind = iota
	kindSessionEnd
	kindRunCreate
	kindRunUpdate
	kindSpan
)

type traceMsg struct {
	kind msgKind
	at   time.Time

	runID      string
	iteration  int
	durationMs float64
	transcript string
	response   string
	status     string

	interactions int
	logPath      string

	span Span
}

// Tracer writes trace rows from a single background goroutine.
// All methods are no-ops on a nil receiver.
type Tracer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer records a new session and returns a tracer bound to it.
// Close must be called to flush pending writes.
func NewTracer(store *Store, startedAt time.Time) *Tracer {
	t := &Tracer{
		store:     store,
		sessionID: uuid.NewString(),
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	go t.drain()
	t.ch <- traceMsg{kind: kindSessionCreate, at: startedAt}
	return t
}

// SessionID returns the trace id of the session, empty on a nil tracer.
func (t *Tracer) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		if err := t.handle(msg); err != nil {
			slog.Warn("trace write failed", "kind", msg.kind, "error", err)
		}
	}
}

func (t *Tracer) handle(m traceMsg) error {
	switch m.kind {
	case kindSessionCreate:
		return t.store.CreateSession(t.sessionID, m.at)
	case kindSessionEnd:
		return t.store.EndSession(t.sessionID, m.at, m.interactions, m.logPath)
	case kindRunCreate:
		return t.store.CreateRun(m.runID, t.sessionID, m.iteration, m.at)
	case kindRunUpdate:
		return t.store.UpdateRun(m.runID, m.durationMs, m.transcript, m.response, m.status)
	case kindSpan:
		return t.store.CreateSpan(m.span)
	}
	return nil
}

// StartRun begins a run for one interaction and returns its id.
func (t *Tracer) StartRun(iteration int) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.ch <- traceMsg{kind: kindRunCreate, runID: id, iteration: iteration, at: time.Now()}
	return id
}

// EndRun finalizes a run.
func (t *Tracer) EndRun(runID string, durationMs float64, transcript, response, status string) {
	if t == nil || runID == "" {
		return
	}
	t.ch <- traceMsg{
		kind:       kindRunUpdate,
		runID:      runID,
		durationMs: durationMs,
		transcript: truncate(transcript, maxIOLen),
		response:   truncate(response, maxIOLen),
		status:     status,
	}
}

// RecordSpan records one completed stage call.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil || runID == "" {
		return
	}
	t.ch <- traceMsg{
		kind: kindSpan,
		span: Span{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxIOLen),
			Output:     truncate(output, maxIOLen),
			Status:     status,
			Error:      errMsg,
		},
	}
}

// EndSession records the session end and where its log was written.
func (t *Tracer) EndSession(endedAt time.Time, interactions int, logPath string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{kind: kindSessionEnd, at: endedAt, interactions: interactions, logPath: logPath}
}

// Close drains pending writes and stops the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
