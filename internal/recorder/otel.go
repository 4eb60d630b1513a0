package recorder

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/tickbridge/internal/recorder"

type instruments struct {
	records  metric.Int64Counter
	failures metric.Int64Counter
	flush    metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		i   instruments
		err error
	)

	i.records, err = m.Int64Counter(
		"recorder.records.appended",
		metric.WithDescription("Records appended to the journal"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating appended counter: %w", err)
	}

	i.failures, err = m.Int64Counter(
		"recorder.records.failed",
		metric.WithDescription("Messages that could not be journaled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	i.flush, err = m.Float64Histogram(
		"recorder.flush.duration",
		metric.WithDescription("Time spent flushing the journal backend"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flush histogram: %w", err)
	}
	return &i, nil
}

func (i *instruments) appended(kind string) {
	i.records.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *instruments) failed(kind string) {
	i.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *instruments) flushed(d time.Duration) {
	i.flush.Record(context.Background(), float64(d.Microseconds())/1000)
}
