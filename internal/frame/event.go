package frame

import "time"

// Event types emitted to Config.OnEvent.
const (
	EventGreeting   = "greeting"
	EventTranscript = "transcript"
	EventResponse   = "response"
	EventMetrics    = "metrics"
	EventExit       = "exit"
	EventError      = "error"
	EventSessionEnd = "session_end"
)

// Event is a coordinator progress notification. Latencies are in seconds.
type Event struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Iteration int       `json:"iteration"`
	Stage     Stage     `json:"stage,omitempty"`
	Text      string    `json:"text,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	S2T       *float64  `json:"s2t_latency,omitempty"`
	NLP       *float64  `json:"nlp_latency,omitempty"`
	T2S       *float64  `json:"t2s_latency,omitempty"`
	Total     *float64  `json:"total_latency,omitempty"`
	Path      string    `json:"path,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (c *Coordinator) emit(ev Event) {
	if c.cfg.OnEvent == nil {
		return
	}
	ev.Time = c.now()
	c.cfg.OnEvent(ev)
}
