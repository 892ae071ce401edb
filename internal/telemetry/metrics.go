package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for QuestionsTotal.
const (
	OutcomeAnswered        = "answered"
	OutcomeDegraded        = "degraded"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
)

var (
	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "privacyx",
		Name:      "questions_total",
		Help:      "Questions handled by the pipeline, by outcome.",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "privacyx",
		Name:      "stage_duration_seconds",
		Help:      "Latency of the embed, search and generate stages.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	FragmentsRetrieved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "privacyx",
		Name:      "fragments_retrieved",
		Help:      "Fragments returned by the vector index per question.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "privacyx",
		Name:      "auth_events_total",
		Help:      "Signup, login and logout attempts, by event and result.",
	}, []string{"event", "result"})
)
