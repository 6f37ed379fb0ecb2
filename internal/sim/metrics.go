package sim

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/trainmap/trainmap/internal/sim"

type metrics struct {
	ticks     metric.Int64Counter
	snapshots metric.Int64Counter
	arrivals  metric.Int64Counter
	evictions metric.Int64Counter
	rejected  metric.Int64Counter
	trains    metric.Int64ObservableGauge
}

// newMetrics registers the simulation instruments on the global meter
// (no-op if not configured). stats feeds the trains gauge.
func newMetrics(stats func() Stats) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	if out.ticks, err = m.Int64Counter("sim.ticks",
		metric.WithDescription("Total simulation ticks")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if out.snapshots, err = m.Int64Counter("sim.snapshots",
		metric.WithDescription("Total snapshots published")); err != nil {
		return nil, fmt.Errorf("creating snapshots counter: %w", err)
	}
	if out.arrivals, err = m.Int64Counter("sim.arrivals",
		metric.WithDescription("Total station arrivals")); err != nil {
		return nil, fmt.Errorf("creating arrivals counter: %w", err)
	}
	if out.evictions, err = m.Int64Counter("sim.evictions",
		metric.WithDescription("Total stale sensed trains evicted")); err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}
	if out.rejected, err = m.Int64Counter("sim.spawns.rejected",
		metric.WithDescription("Total spawn requests rejected")); err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	if out.trains, err = m.Int64ObservableGauge("sim.trains",
		metric.WithDescription("Trains currently tracked")); err != nil {
		return nil, fmt.Errorf("creating trains gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			st := stats()
			o.ObserveInt64(out.trains, int64(st.Sensed),
				metric.WithAttributes(attribute.String("source", "sensed")))
			o.ObserveInt64(out.trains, int64(st.Simulated),
				metric.WithAttributes(attribute.String("source", "simulated")))
			return nil
		},
		out.trains,
	)
	if err != nil {
		return nil, fmt.Errorf("registering trains callback: %w", err)
	}

	return &out, nil
}

func (m *metrics) add(c metric.Int64Counter, n int, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	c.Add(context.Background(), int64(n), metric.WithAttributes(attrs...))
}
