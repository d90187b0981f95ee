package proxy

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lambda-feedback/edgeproxy/internal/proxy"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startAttemptSpan starts the client span of one upstream attempt and
// propagates it to the outbound header.
func (p *Proxy) startAttemptSpan(
	ctx context.Context,
	role string,
	method string,
	target string,
	header http.Header,
) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "upstream "+role,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("edgeproxy.role", role),
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		),
	)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	return ctx, span
}

func endAttemptSpan(span trace.Span, a attempt) {
	defer span.End()

	if a.err != nil {
		span.RecordError(a.err)
		span.SetStatus(codes.Error, a.err.Error())
		return
	}

	span.SetAttributes(attribute.Int("http.response.status_code", a.res.StatusCode))
	if a.failed() {
		span.SetStatus(codes.Error, http.StatusText(a.res.StatusCode))
	}
}
