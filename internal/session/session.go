// Package session holds the record of one coordinator run and its on-disk
// JSON log format.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is one run of the coordinator.
type Session struct {
	Start        time.Time
	End          time.Time
	Interactions []Interaction
}

// Interaction is one capture, generate, speak cycle. Stage latencies are in
// seconds; a nil latency means the stage did not run.
type Interaction struct {
	Iteration     int
	Timestamp     time.Time
	S2TLatency    *float64
	UserInput     string
	NLPLatency    *float64
	Response      string
	T2SLatency    *float64
	TotalLatency  *float64
	ExitTriggered bool
}

// New starts a session at start.
func New(start time.Time) *Session {
	return &Session{Start: start}
}

// Append adds a completed interaction. Interactions are never modified once appended.
func (s *Session) Append(in Interaction) {
	s.Interactions = append(s.Interactions, in)
}

// Close stamps the end time.
func (s *Session) Close(end time.Time) {
	s.End = end
}

// Completed reports whether all three stages ran.
func (in Interaction) Completed() bool {
	return in.S2TLatency != nil && in.NLPLatency != nil && in.T2SLatency != nil
}

// HasResponse reports whether the interaction carries a generated reply.
func (in Interaction) HasResponse() bool {
	return in.Response != ""
}

// Seconds converts d to a latency value.
func Seconds(d time.Duration) *float64 {
	v := d.Seconds()
	if v < 0 {
		v = 0
	}
	return &v
}

// timeLayout is ISO-8601 local time with microseconds and no zone, which is
// what the log has always carried.
const timeLayout = "2006-01-02T15:04:05.000000"

var parseLayouts = []string{
	timeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// FormatTime renders t the way the log stores timestamps.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

type isoTime time.Time

func (t isoTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(timeLayout))
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	*t = isoTime(parsed)
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type interactionJSON struct {
	Iteration     int      `json:"iteration"`
	Timestamp     isoTime  `json:"timestamp"`
	S2TLatency    *float64 `json:"s2t_latency,omitempty"`
	UserInput     string   `json:"user_input,omitempty"`
	NLPLatency    *float64 `json:"nlp_latency,omitempty"`
	Response      string   `json:"response,omitempty"`
	T2SLatency    *float64 `json:"t2s_latency,omitempty"`
	TotalLatency  *float64 `json:"total_latency,omitempty"`
	ExitTriggered bool     `json:"exit_triggered,omitempty"`
}

func (in Interaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(interactionJSON{
		Iteration:     in.Iteration,
		Timestamp:     isoTime(in.Timestamp),
		S2TLatency:    in.S2TLatency,
		UserInput:     in.UserInput,
		NLPLatency:    in.NLPLatency,
		Response:      in.Response,
		T2SLatency:    in.T2SLatency,
		TotalLatency:  in.TotalLatency,
		ExitTriggered: in.ExitTriggered,
	})
}

func (in *Interaction) UnmarshalJSON(data []byte) error {
	var raw interactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = Interaction{
		Iteration:     raw.Iteration,
		Timestamp:     time.Time(raw.Timestamp),
		S2TLatency:    raw.S2TLatency,
		UserInput:     raw.UserInput,
		NLPLatency:    raw.NLPLatency,
		Response:      raw.Response,
		T2SLatency:    raw.T2SLatency,
		TotalLatency:  raw.TotalLatency,
		ExitTriggered: raw.ExitTriggered,
	}
	return nil
}

type sessionJSON struct {
	SessionStart isoTime       `json:"session_start"`
	SessionEnd   *isoTime      `json:"session_end,omitempty"`
	Interactions []Interaction `json:"interactions"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		SessionStart: isoTime(s.Start),
		Interactions: s.Interactions,
	}
	if out.Interactions == nil {
		out.Interactions = []Interaction{}
	}
	if !s.End.IsZero() {
		end := isoTime(s.End)
		out.SessionEnd = &end
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Session{
		Start:        time.Time(raw.SessionStart),
		Interactions: raw.Interactions,
	}
	if raw.SessionEnd != nil {
		s.End = time.Time(*raw.SessionEnd)
	}
	return nil
}
