package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/accountsec"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot accountsec.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() accountsec.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := accountsec.MetricsSnapshot{
		Counters:   make(map[accountsec.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[accountsec.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("accountsec-test")

	src := &fakeSource{
		snapshot: accountsec.MetricsSnapshot{
			Counters: map[accountsec.MetricID]uint64{
				accountsec.MetricLoginSuccess: 3,
			},
			Histograms: map[accountsec.MetricID][]uint64{
				accountsec.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
	if got := sumValue(t, rm, "accountsec_login_success_total"); got != 3 {
		t.Fatalf("login success = %d, want 3", got)
	}
	if got := gaugeValue(t, rm, "accountsec_login_latency_seconds_count"); got != 8 {
		t.Fatalf("latency count = %d, want 8", got)
	}
	if got := sumValue(t, rm, "accountsec_audit_dropped_total"); got != 1 {
		t.Fatalf("audit dropped = %d, want 1", got)
	}
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Metrics{}
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	sum, ok := findMetric(t, rm, name).Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("metric %s is not a single-point int64 sum", name)
	}
	return sum.DataPoints[0].Value
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	gauge, ok := findMetric(t, rm, name).Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 {
		t.Fatalf("metric %s is not a single-point int64 gauge", name)
	}
	return gauge.DataPoints[0].Value
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("accountsec-test")

	if _, err := NewFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("accountsec-test")

	src := &fakeSource{
		snapshot: accountsec.MetricsSnapshot{
			Counters: map[accountsec.MetricID]uint64{
				accountsec.MetricLoginSuccess: 1,
			},
			Histograms: map[accountsec.MetricID][]uint64{
				accountsec.MetricLoginLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[accountsec.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterWithMetricsDisabledReportsOnlyAuditDrops(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("accountsec-test")

	src := &fakeSource{dropped: 4}
	exp, err := NewFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := sumValue(t, rm, "accountsec_audit_dropped_total"); got != 4 {
		t.Fatalf("audit dropped = %d, want 4", got)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "accountsec_login_success_total" {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
					t.Fatalf("login counter reported with metrics disabled: %+v", sum.DataPoints)
				}
			}
		}
	}
}
