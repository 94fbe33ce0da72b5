package catalogue

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/catalogue-manager/internal/client/catalogue"

type telemetry struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("catalogue.client.requests",
		metric.WithDescription("Calls made to the catalogue service"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "requests counter")
	}
	duration, err := meter.Float64Histogram("catalogue.client.duration",
		metric.WithDescription("Duration of catalogue service calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}, nil
}

// start opens a client span for op. The returned func must be called with
// the response status (0 on transport failure) and the final error.
func (t *telemetry) start(ctx context.Context, op string) (context.Context, func(status int, err error)) {
	ctx, span := t.tracer.Start(ctx, "catalogue."+op, trace.WithSpanKind(trace.SpanKindClient))
	began := time.Now()

	return ctx, func(status int, err error) {
		attrs := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.Int("http.response.status_code", status),
		)
		t.requests.Add(ctx, 1, attrs)
		t.duration.Record(ctx, time.Since(began).Seconds(), attrs)

		if status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
