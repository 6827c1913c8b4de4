package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/block/storefront"

// StartOperation starts a client span for a GraphQL operation. The returned
// function ends it, recording err if non-nil.
func StartOperation(ctx context.Context, kind, operation string) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, kind+" "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(OperationKindAttribute, kind),
			attribute.String(OperationNameAttribute, operation),
		))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
