package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorTypeKey holds the Go type of the recorded error.
const ErrorTypeKey = "applyflow.error.type"

// SetError marks span as failed with err and attaches attrs to the span itself, so a failed
// dispatch or step can be searched by its ids. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.SetAttributes(append(attrs, attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)))...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
