package analyzer

// Grade is a coarse quality band.
type Grade string

const (
	Excellent Grade = "EXCELLENT"
	Good      Grade = "GOOD"
	Fair      Grade = "FAIR"
	Poor      Grade = "POOR"
)

// Ratings grade mean total latency and success rate.
type Ratings struct {
	Latency     Grade
	Reliability Grade
}

func rate(meanTotal, successRate float64) *Ratings {
	r := &Ratings{}
	switch {
	case meanTotal < 5:
		r.Latency = Excellent
	case meanTotal < 10:
		r.Latency = Good
	case meanTotal < 15:
		r.Latency = Fair
	default:
		r.Latency = Poor
	}
	switch {
	case successRate >= 0.95:
		r.Reliability = Excellent
	case successRate >= 0.80:
		r.Reliability = Good
	case successRate >= 0.60:
		r.Reliability = Fair
	default:
		r.Reliability = Poor
	}
	return r
}

var latencyNotes = map[Grade]string{
	Excellent: "Very responsive system",
	Good:      "Acceptable response times",
	Fair:      "Noticeable delays",
	Poor:      "Significant latency issues",
}

var reliabilityNotes = map[Grade]string{
	Excellent: "Very reliable",
	Good:      "Mostly reliable",
	Fair:      "Some failures",
	Poor:      "Frequent failures",
}

// Bottleneck flags a stage whose mean dominates the mean total.
type Bottleneck struct {
	Stage          string
	Primary        bool
	Recommendation string
}

func bottlenecks(r Report) []Bottleneck {
	total := r.Total.Mean
	var out []Bottleneck
	if r.NLP != nil && r.NLP.Mean > total*0.5 {
		out = append(out, Bottleneck{Stage: "Language model calls", Primary: true, Recommendation: "Use a local or smaller model"})
	}
	if r.S2T != nil && r.S2T.Mean > total*0.4 {
		out = append(out, Bottleneck{Stage: "Speech recognition", Recommendation: "Use a local whisper model and a shorter capture window"})
	}
	if r.T2S != nil && r.T2S.Mean > total*0.3 {
		out = append(out, Bottleneck{Stage: "Text-to-speech", Recommendation: "Use a local TTS voice"})
	}
	return out
}
