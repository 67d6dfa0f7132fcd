package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/accountsec"
	"github.com/MrEthical07/accountsec/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *accountsec.Engine.
type MetricsSource interface {
	MetricsSnapshot() accountsec.MetricsSnapshot
	AuditDropped() uint64
}

// latencyInstruments publishes one engine latency histogram as cumulative
// per-bound gauges plus a sample count.
type latencyInstruments struct {
	id     accountsec.MetricID
	le     [8]metric.Int64ObservableGauge
	sample metric.Int64ObservableGauge
}

// Exporter mirrors the engine's login, lockout, session, reset, invitation
// and sweep counters into an OpenTelemetry meter. Values are read from a
// snapshot at collection time; the exporter holds no state of its own.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration

	events       map[accountsec.MetricID]metric.Int64ObservableCounter
	latency      []latencyInstruments
	auditDropped metric.Int64ObservableCounter
}

// New registers instruments for engine on meter. Close unregisters them.
func New(meter metric.Meter, engine *accountsec.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource is New for any snapshot provider.
func NewFromSource(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source: source,
		events: make(map[accountsec.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("accountsec counter %s: %w", def.Name, err)
		}
		e.events[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		li, obs, err := registerLatency(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, li)
		observables = append(observables, obs...)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp), metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("accountsec counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register accountsec metrics callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func registerLatency(meter metric.Meter, def internaldefs.HistogramDef) (latencyInstruments, []metric.Observable, error) {
	li := latencyInstruments{id: def.ID}
	obs := make([]metric.Observable, 0, len(li.le)+1)
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Samples at or under this bound."))
		if err != nil {
			return li, nil, fmt.Errorf("accountsec gauge %s: %w", name, err)
		}
		li.le[i] = g
		obs = append(obs, g)
	}
	name := def.Name + "_count"
	g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Total samples."))
	if err != nil {
		return li, nil, fmt.Errorf("accountsec gauge %s: %w", name, err)
	}
	li.sample = g
	return li, append(obs, g), nil
}

// observe runs once per collection. With metrics disabled in the engine the
// snapshot is empty and only the audit drop count is reported.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	if len(snap.Counters) > 0 {
		for id, c := range e.events {
			o.ObserveInt64(c, int64(snap.Counters[id]))
		}
	}
	for _, li := range e.latency {
		raw, ok := snap.Histograms[li.id]
		if !ok {
			continue
		}
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, g := range li.le {
			o.ObserveInt64(g, int64(cum[i]))
		}
		o.ObserveInt64(li.sample, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
