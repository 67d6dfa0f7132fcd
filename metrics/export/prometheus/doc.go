// Package prometheus exposes accountsec engine metrics as a
// prometheus.Collector.
//
// Counter names are prefixed accountsec_ and end in _total; the single
// histogram is accountsec_login_latency_seconds. The collector reads
// [accountsec.Engine.MetricsSnapshot] on every scrape.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers register
//     the collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
