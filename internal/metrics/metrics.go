package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefcast_runs_total",
		Help: "Total bulletin generation runs by outcome",
	}, []string{"outcome"})
	SourceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefcast_source_failures_total",
		Help: "Total per-source fetch failures",
	}, []string{"source"})
	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefcast_emails_sent_total",
		Help: "Total bulletin emails by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "briefcast_run_duration_seconds",
		Help:    "Bulletin generation wall time in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)
