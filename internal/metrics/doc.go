// SPDX-License-Identifier: MPL-2.0

// Package metrics records build telemetry with Prometheus collectors and
// writes it in the text exposition format for a node exporter textfile
// collector.
package metrics
