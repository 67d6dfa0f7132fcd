// Package otel exports accountsec engine metrics through OpenTelemetry.
//
// [New] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. A single callback reads
// [accountsec.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
