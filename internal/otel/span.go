// Package otel holds the span helpers the identity resolver uses. Callers pass
// a nil tracer when tracing is off.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AttrIdentityOutcome is the result of resolving a session token:
// authenticated, invalid or unavailable.
const AttrIdentityOutcome = attribute.Key("identity.outcome")

// failedStatus is the only status description ever set. Token verification
// errors can quote claims and key ids; those stay on the exception event.
const failedStatus = "operation failed"

// StartSpan starts a child span of ctx, or returns the span already in ctx
// when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err as an exception event and marks span failed.
// Nil spans and nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, failedStatus)
}

// SetOutcome tags span with outcome under key. A non-nil err is recorded as
// with RecordError.
func SetOutcome(span trace.Span, key attribute.Key, outcome string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(key.String(outcome))
	RecordError(span, err)
}
