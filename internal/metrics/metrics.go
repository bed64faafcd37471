package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_session_active",
		Help: "1 while a conversation session is running",
	})

	InteractionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_interactions_total",
		Help: "Interactions appended to the session log",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frame_stage_duration_seconds",
		Help:    "Per-stage latency (capture, generate, synthesize)",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30},
	}, []string{"stage"})

	InteractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_interaction_duration_seconds",
		Help:    "Total latency of a completed interaction",
		Buckets: []float64{1, 2, 5, 8, 10, 15, 20, 30, 45, 60},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_stage_errors_total",
		Help: "Stage failures by stage and error type",
	}, []string{"stage", "error_type"})

	EmptyCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_empty_captures_total",
		Help: "Capture attempts that produced no text",
	})

	SilenceGated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_capture_silence_total",
		Help: "Recordings dropped by the energy gate before transcription",
	})

	NoiseFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_asr_noise_filtered_total",
		Help: "Transcripts dropped by the noise filter",
	})

	FallbackReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_fallback_replies_total",
		Help: "Generation failures replaced with the fallback reply",
	})
)
