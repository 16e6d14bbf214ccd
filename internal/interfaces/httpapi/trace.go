package httpapi

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var opsTracer = otel.Tracer("match-odds-engine/internal/interfaces/httpapi")

// startHandlerSpan opens a child of the otelhttp server span. Requests the
// tracing middleware filtered out keep the non-recording span from ctx.
func startHandlerSpan(r *http.Request, handler string) (context.Context, trace.Span) {
	ctx := r.Context()
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return opsTracer.Start(ctx, handlerSpanName(handler),
		trace.WithAttributes(attribute.String("http.route_handler", handler)),
	)
}

func handlerSpanName(handler string) string {
	return "httpapi.Handler." + handler
}
