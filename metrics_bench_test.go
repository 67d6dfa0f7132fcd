package accountsec

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginFailure)
	}
}

func BenchmarkMetricsIncDisabledParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginFailure)
		}
	})
}

func BenchmarkMetricsObserveLoginLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 40 * time.Millisecond
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricLoginLatency, d)
		}
	})
}

// Counters touched on a failed login that ends in a lockout.
var lockoutPathMetricIDs = [...]MetricID{
	MetricLoginFailure,
	MetricLockoutTemporary,
	MetricLockoutExtended,
	MetricLoginLocked,
}

func BenchmarkMetricsIncLockoutPathParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(lockoutPathMetricIDs[idx])
			idx = (idx + 1) % len(lockoutPathMetricIDs)
		}
	})
}
