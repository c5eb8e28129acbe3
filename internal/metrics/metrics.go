// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vvimage/internal/resolve"
	"vvimage/internal/stage"
)

// Namespace prefixes every metric name.
const Namespace = "vvimage"

// Recorder collects build metrics. It implements assemble.Observer.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
	artifacts     *prometheus.CounterVec
	artifactFiles *prometheus.GaugeVec
	lastBuild     prometheus.Gauge
	buildResults  *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Wall time of build stages",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
		},
		[]string{"stage"},
	)

	r.stageResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stage",
			Name:      "results_total",
			Help:      "Build stages by final state",
		},
		[]string{"stage", "state"},
	)

	r.artifacts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "artifact",
			Name:      "resolved_total",
			Help:      "Resolved artifacts by kind and whether a cached copy was reused",
		},
		[]string{"artifact", "kind", "cached"},
	)

	r.artifactFiles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "artifact",
			Name:      "files",
			Help:      "Number of files in the normalized artifact directory",
		},
		[]string{"artifact", "version", "variant"},
	)

	r.lastBuild = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "build",
		Name:      "last_timestamp_seconds",
		Help:      "Unix time of the last finished build",
	})

	r.buildResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "build",
			Name:      "results_total",
			Help:      "Finished builds by result",
		},
		[]string{"result"},
	)

	r.registry.MustRegister(
		r.stageDuration,
		r.stageResults,
		r.artifacts,
		r.artifactFiles,
		r.lastBuild,
		r.buildResults,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// StageFinished records the final state of a stage. Stages that never ran
// record no duration.
func (r *Recorder) StageFinished(name string, state stage.State, elapsed time.Duration) {
	r.stageResults.WithLabelValues(name, state.String()).Inc()
	if state == stage.StateCompleted || state == stage.StateFailed {
		r.stageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// ArtifactResolved records a resolved artifact.
func (r *Recorder) ArtifactResolved(a *resolve.Artifact) {
	r.artifacts.WithLabelValues(a.Descriptor.Name, a.Descriptor.Kind.String(), fmt.Sprint(a.Cached)).Inc()
	r.artifactFiles.WithLabelValues(a.Descriptor.Name, a.Descriptor.Version, a.Variant.String()).Set(float64(len(a.Files)))
}

// BuildFinished records the outcome of a whole build.
func (r *Recorder) BuildFinished(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.buildResults.WithLabelValues(result).Inc()
	r.lastBuild.SetToCurrentTime()
}

// WriteTextfile atomically writes the collected metrics to path in the
// Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
