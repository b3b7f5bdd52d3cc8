// Package prometheus renders goRotate engine metrics in Prometheus text
// exposition format.
//
// Counter names are gorotate_*_total; the refresh latency histogram is
// gorotate_refresh_latency_seconds and is only emitted when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount [Exporter.Handler].
//   - Mutate engine state.
package prometheus
