package tracing_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomasbasham/throttle"
	"github.com/tomasbasham/throttle/tracing"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestMiddleware_ThroughScheduler(t *testing.T) {
	sr, tracer := setupTestTracer()

	s, err := throttle.New[string](throttle.WithMiddleware(tracing.MiddlewareWithTracer(tracer)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var spanCtx trace.SpanContext
	_, err = s.Add(context.Background(), func(ctx context.Context) (string, error) {
		spanCtx = trace.SpanFromContext(ctx).SpanContext()
		return "", nil
	}, throttle.WithID("job-1"), throttle.WithPriority(throttle.Priorities.High))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]

	if span.Name() != tracing.SpanName {
		t.Errorf("mismatch:\n  got:  %q\n  want: %q", span.Name(), tracing.SpanName)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("expected status Ok, got %v", span.Status().Code)
	}
	if !spanCtx.IsValid() || spanCtx.TraceID() != span.SpanContext().TraceID() {
		t.Error("expected task to run inside the span's context")
	}

	want := map[attribute.Key]attribute.Value{
		"throttle.task.id":       attribute.StringValue("job-1"),
		"throttle.task.priority": attribute.IntValue(10),
	}
	for _, kv := range span.Attributes() {
		if v, ok := want[kv.Key]; ok {
			if v != kv.Value {
				t.Errorf("attribute %q: mismatch:\n  got:  %v\n  want: %v", kv.Key, kv.Value.Emit(), v.Emit())
			}
			delete(want, kv.Key)
		}
	}
	for k := range want {
		t.Errorf("missing attribute %q", k)
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	tests := map[string]struct {
		err         error
		description string
		exception   bool
	}{
		"task error": {
			err:         errors.New("handler failed"),
			description: "handler failed",
			exception:   true,
		},
		"cancelled": {
			err:         context.Canceled,
			description: "cancelled",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sr, tracer := setupTestTracer()
			mw := tracing.MiddlewareWithTracer(tracer)

			err := mw(context.Background(), throttle.TaskInfo{ID: "x"}, func(context.Context) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected handler error, got %v", err)
			}

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}

			status := spans[0].Status()
			if status.Code != codes.Error {
				t.Errorf("expected status Error, got %v", status.Code)
			}
			if status.Description != tt.description {
				t.Errorf("mismatch:\n  got:  %q\n  want: %q", status.Description, tt.description)
			}

			found := false
			for _, ev := range spans[0].Events() {
				if ev.Name == "exception" {
					found = true
				}
			}
			if found != tt.exception {
				t.Errorf("expected exception event %v, got %v", tt.exception, found)
			}
		})
	}
}

func TestMiddleware_DefaultNoopSafe(t *testing.T) {
	mw := tracing.Middleware()

	called := false
	err := mw(context.Background(), throttle.TaskInfo{ID: "x"}, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}
