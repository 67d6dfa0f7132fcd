package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/accountsec"
)

type fakeSource struct {
	snapshot accountsec.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() accountsec.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: accountsec.MetricsSnapshot{
			Counters:   map[accountsec.MetricID]uint64{},
			Histograms: map[accountsec.MetricID][]uint64{},
		},
	})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no metrics, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: accountsec.MetricsSnapshot{
			Counters: map[accountsec.MetricID]uint64{
				accountsec.MetricLoginSuccess:     7,
				accountsec.MetricLockoutTemporary: 2,
			},
			Histograms: map[accountsec.MetricID][]uint64{
				accountsec.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP accountsec_login_success_total Successful logins.
# TYPE accountsec_login_success_total counter
accountsec_login_success_total 7
# HELP accountsec_lockout_temporary_total Temporary lockouts created.
# TYPE accountsec_lockout_temporary_total counter
accountsec_lockout_temporary_total 2
# HELP accountsec_audit_dropped_total Audit events dropped under dispatcher backpressure.
# TYPE accountsec_audit_dropped_total counter
accountsec_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"accountsec_login_success_total",
		"accountsec_lockout_temporary_total",
		"accountsec_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}

	histogram := `
# HELP accountsec_login_latency_seconds Login latency.
# TYPE accountsec_login_latency_seconds histogram
accountsec_login_latency_seconds_bucket{le="0.005"} 1
accountsec_login_latency_seconds_bucket{le="0.01"} 3
accountsec_login_latency_seconds_bucket{le="0.025"} 6
accountsec_login_latency_seconds_bucket{le="0.05"} 10
accountsec_login_latency_seconds_bucket{le="0.1"} 15
accountsec_login_latency_seconds_bucket{le="0.25"} 21
accountsec_login_latency_seconds_bucket{le="0.5"} 28
accountsec_login_latency_seconds_bucket{le="+Inf"} 36
accountsec_login_latency_seconds_sum 0
accountsec_login_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(histogram), "accountsec_login_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}

func TestCollectorLintClean(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: accountsec.MetricsSnapshot{
			Counters: map[accountsec.MetricID]uint64{accountsec.MetricLoginFailure: 1},
		},
	})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("lint problems: %+v", problems)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	engine, err := accountsec.New().
		WithIdentityProvider(noIdentity{}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	srv := httptest.NewServer(NewCollector(engine).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "accountsec_login_success_total 0") {
		t.Fatalf("expected login counter in scrape, got:\n%s", body)
	}
}

type noIdentity struct{}

func (noIdentity) ResolveAccount(context.Context, string) (accountsec.AccountRecord, bool, error) {
	return accountsec.AccountRecord{}, false, nil
}

func (noIdentity) RequestStatusChange(context.Context, string, accountsec.AccountStatus) error {
	return nil
}
