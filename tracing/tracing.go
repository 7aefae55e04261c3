// Package tracing wraps task execution in OpenTelemetry spans.
package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomasbasham/throttle"
)

const tracerName = "github.com/tomasbasham/throttle"

// SpanName is the name of the span started for every task.
const SpanName = "throttle.task.execute"

// Middleware returns a [throttle.Middleware] that runs each task inside a
// span from the global TracerProvider. Without a configured provider the
// noop tracer makes it a pass-through.
func Middleware() throttle.Middleware {
	return MiddlewareWithTracer(otel.Tracer(tracerName))
}

// MiddlewareWithTracer returns tracing middleware using the provided tracer.
func MiddlewareWithTracer(tracer trace.Tracer) throttle.Middleware {
	return func(ctx context.Context, info throttle.TaskInfo, next throttle.Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("throttle.task.id", info.ID),
			attribute.Int("throttle.task.priority", int(info.Priority)),
		}
		if info.Timeout > 0 {
			attrs = append(attrs, attribute.String("throttle.task.timeout", info.Timeout.String()))
		}

		ctx, span := tracer.Start(ctx, SpanName,
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(info.StartedAt),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, context.Canceled):
			span.SetStatus(codes.Error, "cancelled")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}
