package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "skyfuse"

// StartRouteSpan starts a span for routing one request.
func StartRouteSpan(ctx context.Context, taskID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartDispatchSpan starts a span for one specialist dispatch.
func StartDispatchSpan(ctx context.Context, specialistID, capability string, depth int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("specialist.id", specialistID),
			attribute.String("capability", capability),
			attribute.Int("delegation.depth", depth),
		),
	)
}

// StartCorrelateSpan starts a span for the correlation computation.
func StartCorrelateSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "correlate",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
}
