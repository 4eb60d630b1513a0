package dispatcher

import (
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/tickbridge/internal/dispatcher"

// meter resolves through the global provider at call time, so a provider
// installed before New is the one that records.
func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func kindAttrs(kind reflect.Type) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kindName(kind)))
}
