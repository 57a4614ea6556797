package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "owl_tasks_submitted_total",
		Help: "Tasks admitted, by kind.",
	}, []string{"kind"})

	tasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "owl_tasks_rejected_total",
		Help: "Submissions rejected before a record was created, by kind and reason.",
	}, []string{"kind", "reason"})

	tasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "owl_tasks_finished_total",
		Help: "Tasks that reached a terminal state, by kind, state and failure code.",
	}, []string{"kind", "state", "code"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "owl_task_duration_seconds",
		Help:    "Time from start of processing to terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind", "state"})

	tasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "owl_tasks_active",
		Help: "Background task units currently running.",
	})
)
