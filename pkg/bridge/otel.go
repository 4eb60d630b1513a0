package bridge

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/tickbridge/pkg/bridge"

func (r *receiver[T]) instrument() error {
	m := otel.Meter(instrumentationName)
	attrs := attribute.NewSet(
		attribute.String("message_type", r.name),
		attribute.String("strategy", r.strategy.String()),
	)
	r.attrs = metric.WithAttributeSet(attrs)

	var err error
	r.forwarded, err = m.Int64Counter(
		"bridge.messages.forwarded",
		metric.WithDescription("Messages moved from a bridge channel into the app"),
	)
	if err != nil {
		return fmt.Errorf("creating forwarded counter: %w", err)
	}

	pending, err := m.Int64ObservableGauge(
		"bridge.queue.pending",
		metric.WithDescription("Messages waiting in a bridge channel"),
	)
	if err != nil {
		return fmt.Errorf("creating pending gauge: %w", err)
	}

	r.gauge, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(pending, int64(r.rx.Len()), metric.WithAttributeSet(attrs))
		return nil
	}, pending)
	if err != nil {
		return fmt.Errorf("registering pending callback: %w", err)
	}
	return nil
}
