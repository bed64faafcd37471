package analyzer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/hubenschmidt/talking-photo-frame/internal/session"
)

var rule = strings.Repeat("=", 60)

// Render writes the report. The same Report always renders to the same bytes.
func Render(w io.Writer, r Report) error {
	var b bytes.Buffer

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "TALKING PHOTO FRAME - PERFORMANCE METRICS REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "\nSession Start: %s\n", session.FormatTime(r.Start))
	end := session.FormatTime(r.End)
	if r.EndInferred {
		end += " (inferred from last interaction)"
	}
	fmt.Fprintf(&b, "Session End: %s\n", end)

	section(&b, "SYSTEM METRICS")
	if r.Interactions > 0 {
		fmt.Fprintf(&b, "Session Duration: %.2f seconds\n", r.Duration)
		fmt.Fprintf(&b, "Total Interactions: %d\n", r.Interactions)
		fmt.Fprintf(&b, "Interactions/Minute: %.2f\n", r.PerMinute)
		fmt.Fprintf(&b, "Avg Time/Interaction: %.2f seconds\n", r.AvgInteraction)
	} else {
		fmt.Fprintln(&b, "No interactions recorded")
	}

	section(&b, "LATENCY METRICS (seconds)")
	for _, l := range []struct {
		name string
		st   *Stats
	}{{"S2T", r.S2T}, {"NLP", r.NLP}, {"T2S", r.T2S}, {"TOTAL", r.Total}} {
		if l.st == nil {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", l.name)
		fmt.Fprintf(&b, "  Mean:   %.3fs\n", l.st.Mean)
		fmt.Fprintf(&b, "  Median: %.3fs\n", l.st.Median)
		fmt.Fprintf(&b, "  Min:    %.3fs\n", l.st.Min)
		fmt.Fprintf(&b, "  Max:    %.3fs\n", l.st.Max)
		fmt.Fprintf(&b, "  StdDev: %.3fs\n", l.st.StdDev)
		fmt.Fprintf(&b, "  Count:  %d\n", l.st.Count)
	}

	section(&b, "QUALITY METRICS")
	fmt.Fprintf(&b, "Success Rate: %.1f%%\n", r.SuccessRate*100)
	fmt.Fprintf(&b, "Successful Interactions: %d/%d\n", r.Successful, r.Interactions)
	fmt.Fprintf(&b, "Avg Input Length: %.0f characters\n", r.AvgInputLen)
	fmt.Fprintf(&b, "Avg Response Length: %.0f characters\n", r.AvgResponseLen)

	section(&b, "LATENCY BREAKDOWN (% of total time)")
	for _, l := range []struct {
		name string
		pct  *float64
	}{{"Speech-to-Text", r.Breakdown.S2T}, {"NLP Processing", r.Breakdown.NLP}, {"Text-to-Speech", r.Breakdown.T2S}} {
		if l.pct != nil {
			fmt.Fprintf(&b, "%s: %.1f%%\n", l.name, *l.pct)
		}
	}

	section(&b, "PERFORMANCE RATING")
	renderRatings(&b, r)

	section(&b, "DETAILED INTERACTION LOG")
	for i, d := range r.Details {
		fmt.Fprintf(&b, "\nInteraction %d:\n", i+1)
		fmt.Fprintf(&b, "  User: %s\n", orNA(d.UserInput))
		fmt.Fprintf(&b, "  Response: %s\n", orNA(d.Response))
		fmt.Fprintf(&b, "  Total Latency: %.2fs\n", d.Total)
		if d.Exit {
			fmt.Fprintln(&b, "  Exit: yes")
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

// Text renders the report to a string.
func (r Report) Text() string {
	var b strings.Builder
	_ = Render(&b, r) // strings.Builder writes never fail
	return b.String()
}

func section(b *bytes.Buffer, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n%s\n", rule, title, rule)
}

func renderRatings(b *bytes.Buffer, r Report) {
	if r.Ratings == nil {
		fmt.Fprintln(b, "Insufficient data for performance rating")
		return
	}
	fmt.Fprintln(b, "\nLatency Rating:")
	fmt.Fprintf(b, "  %s - %s\n", r.Ratings.Latency, latencyNotes[r.Ratings.Latency])
	fmt.Fprintln(b, "\nReliability Rating:")
	fmt.Fprintf(b, "  %s - %s\n", r.Ratings.Reliability, reliabilityNotes[r.Ratings.Reliability])

	fmt.Fprintln(b, "\nBottleneck Analysis:")
	if len(r.Bottlenecks) == 0 {
		fmt.Fprintln(b, "  none")
	}
	for _, bn := range r.Bottlenecks {
		label := "BOTTLENECK"
		if bn.Primary {
			label = "PRIMARY BOTTLENECK"
		}
		fmt.Fprintf(b, "  %s: %s\n", label, bn.Stage)
		fmt.Fprintf(b, "    Recommendation: %s\n", bn.Recommendation)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
