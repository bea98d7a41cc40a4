package commute

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/roomcommute/roomcommute/internal/commute"

// metrics holds the engine's instruments. A nil *metrics records nothing.
type metrics struct {
	results  metric.Int64Counter
	timeouts metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)

	results, err := meter.Int64Counter(
		"commute.results",
		metric.WithDescription("Commute estimates produced, by method"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"commute.transit.timeouts",
		metric.WithDescription("Transit calls abandoned after the task timeout"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{results: results, timeouts: timeouts}, nil
}

func (m *metrics) recordResults(ctx context.Context, mode Mode, results []Result) {
	if m == nil {
		return
	}
	counts := make(map[Method]int64, 4)
	for _, r := range results {
		counts[r.Method]++
	}
	for method, n := range counts {
		m.results.Add(ctx, n, metric.WithAttributes(
			attribute.String("commute.mode", string(mode)),
			attribute.String("commute.method", string(method)),
		))
	}
}

func (m *metrics) recordTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.timeouts.Add(ctx, 1)
}
