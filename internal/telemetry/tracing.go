// Package telemetry installs OpenTelemetry context propagation and hands out
// the tracer used around job execution. Spans are recorded by whatever
// provider is registered globally; without one they are no-ops.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/difranardo/vacancies-scrapper"

var initOnce sync.Once

// InitPropagation installs the W3C trace context and baggage propagators.
// Completion messages carry the job span through them.
func InitPropagation() {
	initOnce.Do(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartJobSpan opens the span covering one scrape job.
func StartJobSpan(ctx context.Context, jobID, provider string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "scrape.job", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.provider", provider),
	))
}

// EndJobSpan records the outcome on span and ends it.
func EndJobSpan(span trace.Span, records, failed int, err error) {
	span.SetAttributes(
		attribute.Int("job.records", records),
		attribute.Int("job.failed", failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
