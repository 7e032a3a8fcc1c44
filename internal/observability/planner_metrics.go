package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlannerCollector exposes missile lifecycle and pipeline metrics.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	Admissions       *prometheus.CounterVec
	ActiveMissiles   prometheus.Gauge
	QueuedMissiles   prometheus.Gauge
	PipelineDuration prometheus.Histogram
	PipelineFailures *prometheus.CounterVec
	Tasks            *prometheus.CounterVec
}

// NewPlannerCollector registers planner metrics against the provided registerer.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	admissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_admissions_total",
		Help: "Midcourse admission decisions, labeled by result (accepted or rejected).",
	}, []string{"result"}), "planner_admissions_total")
	if err != nil {
		return nil, err
	}
	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_active_missiles",
		Help: "Missiles currently admitted to midcourse tracking.",
	}), "planner_active_missiles")
	if err != nil {
		return nil, err
	}
	queued, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_queued_missiles",
		Help: "Missiles waiting for an admission slot.",
	}), "planner_queued_missiles")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_pipeline_duration_seconds",
		Help:    "Wall time of one missile planning pipeline run.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}), "planner_pipeline_duration_seconds")
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_pipeline_failures_total",
		Help: "Pipeline runs that produced no timeline, labeled by reason.",
	}, []string{"reason"}), "planner_pipeline_failures_total")
	if err != nil {
		return nil, err
	}
	tasks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_tasks_total",
		Help: "Tasks generated, labeled by level (meta or atomic) and classification.",
	}, []string{"level", "classification"}), "planner_tasks_total")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:         gatherer,
		Admissions:       admissions,
		ActiveMissiles:   active,
		QueuedMissiles:   queued,
		PipelineDuration: duration,
		PipelineFailures: failures,
		Tasks:            tasks,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PlannerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a /metrics handler over the collector's gatherer.
func (c *PlannerCollector) Handler() http.Handler {
	return metricsHandler(c.Gatherer())
}

// ObserveAdmission counts one admission decision.
func (c *PlannerCollector) ObserveAdmission(accepted bool) {
	if c == nil || c.Admissions == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	c.Admissions.WithLabelValues(result).Inc()
}

// SetActive updates the active missile gauge.
func (c *PlannerCollector) SetActive(n int) {
	if c == nil || c.ActiveMissiles == nil {
		return
	}
	c.ActiveMissiles.Set(float64(n))
}

// SetQueued updates the admission queue gauge.
func (c *PlannerCollector) SetQueued(n int) {
	if c == nil || c.QueuedMissiles == nil {
		return
	}
	c.QueuedMissiles.Set(float64(n))
}

// ObservePipeline records a finished pipeline run.
func (c *PlannerCollector) ObservePipeline(d time.Duration) {
	if c == nil || c.PipelineDuration == nil {
		return
	}
	c.PipelineDuration.Observe(d.Seconds())
}

// IncFailure counts a pipeline failure for reason.
func (c *PlannerCollector) IncFailure(reason string) {
	if c == nil || c.PipelineFailures == nil {
		return
	}
	c.PipelineFailures.WithLabelValues(reason).Inc()
}

// AddTasks adds n tasks of the given level and classification.
func (c *PlannerCollector) AddTasks(level, classification string, n int) {
	if c == nil || c.Tasks == nil || n <= 0 {
		return
	}
	c.Tasks.WithLabelValues(level, classification).Add(float64(n))
}
