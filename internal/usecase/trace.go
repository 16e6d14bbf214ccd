package usecase

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var usecaseTracer = otel.Tracer("match-odds-engine/internal/usecase")
var usecaseNoopSpan = trace.SpanFromContext(context.Background())

// startUsecaseSpan only opens a child span; jobs without a parent trace stay untraced.
func startUsecaseSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if strings.TrimSpace(name) == "" {
		return ctx, usecaseNoopSpan
	}
	parent := trace.SpanFromContext(ctx)
	if !parent.SpanContext().IsValid() {
		return ctx, usecaseNoopSpan
	}
	return usecaseTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// startJobSpan roots a trace for one scheduled job run.
func startJobSpan(ctx context.Context, job, runID string) (context.Context, trace.Span) {
	return usecaseTracer.Start(ctx, "job."+job,
		trace.WithNewRoot(),
		trace.WithAttributes(
			attribute.String("job.name", job),
			attribute.String("job.run_id", runID),
		),
	)
}
