// Package metrics provides Prometheus metrics for provisioning runs.
//
// A run is a short-lived process, so metrics are not served over HTTP; they
// are written once at exit in the text exposition format for a node-exporter
// textfile collector.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry is the global Prometheus registry for all metrics.
	Registry = prometheus.NewRegistry()

	initOnce sync.Once
	initErr  error
)

var (
	// StepAttempts counts controller calls made by provisioning steps.
	StepAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctrlseed_step_attempts_total",
			Help: "Total number of attempts made by provisioning steps",
		},
		[]string{"endpoint"},
	)

	// StepFailures counts failed attempts by failure kind.
	StepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctrlseed_step_failures_total",
			Help: "Total number of failed provisioning attempts",
		},
		[]string{"endpoint", "kind"},
	)

	// StepDuration measures the wall time of a step including retries.
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ctrlseed_step_duration_seconds",
			Help: "Provisioning step duration in seconds, retries included",
			// 10ms to ~10min
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
		},
		[]string{"endpoint"},
	)

	// ReadinessProbes counts controller readiness probes by outcome.
	ReadinessProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctrlseed_readiness_probes_total",
			Help: "Total number of controller readiness probes",
		},
		[]string{"outcome"},
	)
)

// Probe outcomes.
const (
	ProbeReady    = "ready"
	ProbeNotReady = "not_ready"
)

// Init registers all collectors with Registry. Safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		for _, c := range []prometheus.Collector{StepAttempts, StepFailures, StepDuration, ReadinessProbes} {
			if err := Registry.Register(c); err != nil {
				initErr = fmt.Errorf("failed to register collector: %w", err)
				return
			}
		}
	})
	return initErr
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is written atomically.
func WriteTextfile(path string) error {
	if err := Init(); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
