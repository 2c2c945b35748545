package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Marks counts toggles by collection and outcome.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodue_marks_total",
		Help: "Attendance toggles applied, by collection and outcome.",
	}, []string{"collection", "outcome"})

	// PersistFailures counts local store writes that failed.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodue_persist_failures_total",
		Help: "Local store writes that failed, by collection.",
	}, []string{"collection"})

	// SyncJobs counts processed sync jobs by collection and result.
	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodue_sync_jobs_total",
		Help: "Remote sync jobs processed, by collection and result.",
	}, []string{"collection", "result"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodue_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)
