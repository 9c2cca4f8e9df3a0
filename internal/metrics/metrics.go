// Package metrics exposes Prometheus instrumentation for the engine.
// Collectors register on the default registry exactly once; all observer
// functions are safe to call before Init (they register implicitly).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "hearthwatch_"

var (
	registerOnce sync.Once

	eventsFired         *prometheus.CounterVec
	alarmsRaised        *prometheus.CounterVec
	activeAlerts        prometheus.Gauge
	securityTransitions *prometheus.CounterVec
	jobRuns             *prometheus.CounterVec
)

// Init registers all engine collectors on the default registry.
func Init() {
	registerOnce.Do(func() {
		eventsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_fired_total",
				Help: "Total events fired by definition name",
			},
			[]string{"definition"},
		)
		alarmsRaised = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_raised_total",
				Help: "Total alarms raised by level",
			},
			[]string{"level"},
		)
		activeAlerts = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alerts",
				Help: "Alerts currently held in the collection",
			},
		)
		securityTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "security_transitions_total",
				Help: "Security state transitions by origin and target state",
			},
			[]string{"from", "to"},
		)
		jobRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_runs_total",
				Help: "Periodic job executions by job name and result",
			},
			[]string{"job", "result"},
		)

		prometheus.MustRegister(
			eventsFired,
			alarmsRaised,
			activeAlerts,
			securityTransitions,
			jobRuns,
		)
	})
}

// EventFired counts one fired event for a definition.
func EventFired(definition string) {
	Init()
	eventsFired.WithLabelValues(definition).Inc()
}

// AlarmRaised counts one raised alarm at a level.
func AlarmRaised(level string) {
	Init()
	alarmsRaised.WithLabelValues(level).Inc()
}

// SetActiveAlerts records the current alert count.
func SetActiveAlerts(n int) {
	Init()
	activeAlerts.Set(float64(n))
}

// SecurityTransition counts one security state change.
func SecurityTransition(from, to string) {
	Init()
	securityTransitions.WithLabelValues(from, to).Inc()
}

// JobRun counts one periodic job execution.
func JobRun(job string, err error) {
	Init()
	result := "success"
	if err != nil {
		result = "error"
	}
	jobRuns.WithLabelValues(job, result).Inc()
}
