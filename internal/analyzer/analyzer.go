// Package analyzer computes descriptive statistics over one session log and
// renders them as a plain-text report. Output depends only on the session.
package analyzer

import (
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/hubenschmidt/talking-photo-frame/internal/session"
)

// Stats describes one latency distribution in seconds.
type Stats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	// StdDev is the sample standard deviation, 0 when Count < 2.
	StdDev float64
	Count  int
}

// Breakdown is each stage's mean latency as a percentage of the mean total.
type Breakdown struct {
	S2T, NLP, T2S *float64
}

// Detail is one row of the interaction log.
type Detail struct {
	Iteration int
	UserInput string
	Response  string
	Total     float64
	Exit      bool
}

// Report is the full analysis of a session.
type Report struct {
	Start time.Time
	End   time.Time
	// EndInferred is set when the log had no session_end and End was taken
	// from the last interaction.
	EndInferred bool

	Duration       float64 // seconds
	Interactions   int
	PerMinute      float64
	AvgInteraction float64 // seconds

	S2T, NLP, T2S, Total *Stats

	Successful     int
	SuccessRate    float64
	AvgInputLen    float64
	AvgResponseLen float64

	Breakdown   Breakdown
	Ratings     *Ratings
	Bottlenecks []Bottleneck
	Details     []Detail
}

// Analyze is a pure function of sess.
func Analyze(sess *session.Session) Report {
	r := Report{
		Start:        sess.Start,
		End:          sess.End,
		Interactions: len(sess.Interactions),
	}
	if r.End.IsZero() {
		r.EndInferred = true
		r.End = r.Start
		if n := len(sess.Interactions); n > 0 {
			r.End = sess.Interactions[n-1].Timestamp
		}
	}
	r.Duration = r.End.Sub(r.Start).Seconds()
	if r.Interactions > 0 {
		if r.Duration > 0 {
			r.PerMinute = float64(r.Interactions) / (r.Duration / 60)
		}
		r.AvgInteraction = r.Duration / float64(r.Interactions)
	}

	var s2t, nlp, t2s, total []float64
	var inputLens, responseLens []float64
	for _, in := range sess.Interactions {
		s2t = appendLatency(s2t, in.S2TLatency)
		nlp = appendLatency(nlp, in.NLPLatency)
		t2s = appendLatency(t2s, in.T2SLatency)
		total = appendLatency(total, in.TotalLatency)

		if in.UserInput != "" {
			inputLens = append(inputLens, float64(utf8.RuneCountInString(in.UserInput)))
		}
		if in.HasResponse() {
			r.Successful++
			responseLens = append(responseLens, float64(utf8.RuneCountInString(in.Response)))
		}

		d := Detail{Iteration: in.Iteration, UserInput: in.UserInput, Response: in.Response, Exit: in.ExitTriggered}
		if in.TotalLatency != nil {
			d.Total = *in.TotalLatency
		}
		r.Details = append(r.Details, d)
	}

	r.S2T, r.NLP, r.T2S, r.Total = Describe(s2t), Describe(nlp), Describe(t2s), Describe(total)
	if r.Interactions > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.Interactions)
	}
	r.AvgInputLen = mean(inputLens)
	r.AvgResponseLen = mean(responseLens)

	if r.Total != nil && r.Total.Mean > 0 {
		r.Breakdown = Breakdown{
			S2T: share(r.S2T, r.Total.Mean),
			NLP: share(r.NLP, r.Total.Mean),
			T2S: share(r.T2S, r.Total.Mean),
		}
	}
	if r.Total != nil {
		r.Ratings = rate(r.Total.Mean, r.SuccessRate)
		r.Bottlenecks = bottlenecks(r)
	}
	return r
}

func appendLatency(xs []float64, v *float64) []float64 {
	if v == nil {
		return xs
	}
	return append(xs, *v)
}

func share(st *Stats, total float64) *float64 {
	if st == nil {
		return nil
	}
	pct := st.Mean / total * 100
	return &pct
}

// Describe returns nil for an empty sample.
func Describe(xs []float64) *Stats {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	st := &Stats{
		Mean:  mean(xs),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(xs),
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		st.Median = sorted[mid]
	} else {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			d := x - st.Mean
			ss += d * d
		}
		st.StdDev = math.Sqrt(ss / float64(len(xs)-1))
	}
	return st
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// AnalyzeFile loads a session log and analyzes it.
func AnalyzeFile(path string) (Report, error) {
	sess, err := session.Load(path)
	if err != nil {
		return Report{}, err
	}
	return Analyze(sess), nil
}
