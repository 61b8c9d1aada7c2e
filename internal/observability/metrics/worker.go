package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	taskTotal          *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	taskInFlight       prometheus.Gauge
	queueLag           *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	generationAttempts *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	taskTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sumflow",
			Subsystem: "worker",
			Name:      "task_total",
			Help:      "Total finished tasks by terminal state.",
		},
		[]string{"service", "state"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sumflow",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds by terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "state"},
	)
	taskInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sumflow",
			Subsystem: "worker",
			Name:      "task_in_flight",
			Help:      "Number of tasks currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sumflow",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between task submission and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sumflow",
			Subsystem: "worker",
			Name:      "stage_duration_seconds",
			Help:      "Time spent reaching a stage checkpoint from the previous one.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 180, 420},
		},
		[]string{"service", "stage"},
	)
	generationAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sumflow",
			Subsystem: "llm",
			Name:      "generation_attempts",
			Help:      "Attempts needed by the strict summary mode.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"service", "ok"},
	)

	registry.MustRegister(taskTotal, taskDuration, taskInFlight, queueLag, stageDuration, generationAttempts)

	return &WorkerMetrics{
		service:            service,
		registry:           registry,
		taskTotal:          taskTotal,
		taskDuration:       taskDuration,
		taskInFlight:       taskInFlight,
		queueLag:           queueLag,
		stageDuration:      stageDuration,
		generationAttempts: generationAttempts,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTask() {
	m.taskInFlight.Inc()
}

func (m *WorkerMetrics) FinishTask(duration time.Duration, state domain.TaskState) {
	m.taskInFlight.Dec()
	m.taskTotal.WithLabelValues(m.service, string(state)).Inc()
	m.taskDuration.WithLabelValues(m.service, string(state)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveStage(stage domain.Stage, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveGeneration(attempts int, ok bool) {
	m.generationAttempts.WithLabelValues(m.service, strconv.FormatBool(ok)).Observe(float64(attempts))
}
