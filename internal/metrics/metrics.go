// Package metrics provides the hub's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes.
const (
	ReportApplied  = "applied"
	ReportStale    = "stale"
	ReportRejected = "rejected"
)

// Command delivery outcomes.
const (
	CommandDelivered = "delivered"
	CommandFailed    = "failed"
	CommandDropped   = "dropped"
)

// Recorder owns a private registry so that tests can build as many
// recorders as they like. All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	ticksTotal    prometheus.Counter
	ticksSkipped  prometheus.Counter
	ticksAborted  prometheus.Counter
	tickDuration  prometheus.Histogram
	conflictEdges prometheus.Gauge
	stoppedAgents prometheus.Gauge
	knownAgents   prometheus.Gauge
	reportsTotal  *prometheus.CounterVec
	commandsTotal *prometheus.CounterVec
}

// NewRecorder creates a recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "collision_hub_ticks_total",
			Help: "Ticks that ran the full build, resolve and dispatch pipeline",
		}),
		ticksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "collision_hub_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		}),
		ticksAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "collision_hub_ticks_aborted_total",
			Help: "Ticks aborted on an internal contract violation",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "collision_hub_tick_duration_seconds",
			Help:    "Wall time of a completed tick",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
		conflictEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collision_hub_conflict_edges",
			Help: "Conflicting pairs found by the last tick",
		}),
		stoppedAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collision_hub_stopped_agents",
			Help: "Agents assigned Stop by the last tick",
		}),
		knownAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collision_hub_known_agents",
			Help: "Agents in the last tick's snapshot",
		}),
		reportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collision_hub_reports_total",
			Help: "Inbound reports by outcome",
		}, []string{"outcome"}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collision_hub_commands_total",
			Help: "Outbound commands by state and delivery outcome",
		}, []string{"state", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveTick records a completed tick.
func (r *Recorder) ObserveTick(d time.Duration, agents, edges, stopped int) {
	if r == nil {
		return
	}
	r.ticksTotal.Inc()
	r.tickDuration.Observe(d.Seconds())
	r.knownAgents.Set(float64(agents))
	r.conflictEdges.Set(float64(edges))
	r.stoppedAgents.Set(float64(stopped))
}

func (r *Recorder) IncTickSkipped() {
	if r == nil {
		return
	}
	r.ticksSkipped.Inc()
}

func (r *Recorder) IncTickAborted() {
	if r == nil {
		return
	}
	r.ticksAborted.Inc()
}

// IncReport counts an inbound report by outcome.
func (r *Recorder) IncReport(outcome string) {
	if r == nil {
		return
	}
	r.reportsTotal.WithLabelValues(outcome).Inc()
}

// IncCommand counts an outbound command by state and outcome.
func (r *Recorder) IncCommand(state, outcome string) {
	if r == nil {
		return
	}
	r.commandsTotal.WithLabelValues(state, outcome).Inc()
}
