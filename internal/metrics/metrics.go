// Package metrics records compile and build outcomes on a private Prometheus
// registry and exports them in the textfile collector format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for compiles.
const (
	OutcomeOK         = "ok"
	OutcomeUsage      = "usage"
	OutcomeParse      = "parse"
	OutcomeValidation = "validation"
	OutcomeCycle      = "cycle"
	OutcomeIO         = "io"
	OutcomeError      = "error"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	reg *prometheus.Registry

	Compiles        *prometheus.CounterVec
	CompileDuration prometheus.Histogram
	Stages          prometheus.Gauge
	Files           prometheus.Gauge
	Rules           prometheus.Gauge
	Builds          *prometheus.CounterVec
	BuildDuration   prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Compiles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeconfig_compiles_total",
				Help: "Pipeline compilations by outcome.",
			},
			[]string{"outcome"},
		),
		CompileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeconfig_compile_duration_seconds",
			Help:    "Time spent compiling a pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Stages: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeconfig_stages",
			Help: "Stages in the last compiled pipeline.",
		}),
		Files: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeconfig_files",
			Help: "Plain file dependencies in the last compiled pipeline.",
		}),
		Rules: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeconfig_rules",
			Help: "Rules emitted by the last compilation.",
		}),
		Builds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeconfig_builds_total",
				Help: "make invocations by result.",
			},
			[]string{"result"},
		),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeconfig_build_duration_seconds",
			Help:    "Wall time of make invocations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeconfig_last_success_timestamp_seconds",
			Help: "Unix time of the last successful compilation.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveCompile records one compilation. stages, files and rules are only
// applied for successful ones.
func (m *Metrics) ObserveCompile(outcome string, d time.Duration, stages, files, rules int) {
	m.Compiles.WithLabelValues(outcome).Inc()
	m.CompileDuration.Observe(d.Seconds())
	if outcome != OutcomeOK {
		return
	}
	m.Stages.Set(float64(stages))
	m.Files.Set(float64(files))
	m.Rules.Set(float64(rules))
	m.LastSuccess.SetToCurrentTime()
}

// ObserveBuild records one make invocation.
func (m *Metrics) ObserveBuild(passed, upToDate bool, d time.Duration) {
	result := "failed"
	switch {
	case upToDate:
		result = "up_to_date"
	case passed:
		result = "passed"
	}
	m.Builds.WithLabelValues(result).Inc()
	m.BuildDuration.Observe(d.Seconds())
}

// WriteTextfile atomically writes all metrics to path for node_exporter's
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
