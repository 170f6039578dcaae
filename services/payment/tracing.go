package payment

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("travelpay/services/payment")

// startGatewaySpan opens a span around one provider call.
func startGatewaySpan(ctx context.Context, op, gateway, ref string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "payment."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.gateway", gateway),
			attribute.String("booking.ref", ref),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
