package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "tempo"

// TracingOption configures the Tracing middleware.
type TracingOption func(*tracingConfig)

type tracingConfig struct {
	tracerName string
	provider   trace.TracerProvider
}

// WithTracerName sets the tracer name (default: "tempo").
func WithTracerName(name string) TracingOption {
	return func(c *tracingConfig) {
		c.tracerName = name
	}
}

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) {
		c.provider = tp
	}
}

// Tracing creates middleware that opens one span per handled message.
// Configure the global provider with otel.SetTracerProvider before serving
// to export the spans.
func Tracing(opts ...TracingOption) Middleware {
	config := tracingConfig{tracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.provider != nil {
		tracer = config.provider.Tracer(config.tracerName)
	} else {
		tracer = otel.Tracer(config.tracerName)
	}

	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, inv *Invocation) error {
			ctx, span := tracer.Start(ctx, "tempo."+inv.Type,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("tempo.message_type", inv.Type),
					attribute.String("tempo.conn_id", inv.Conn.ID()),
					attribute.Int("tempo.frame_bytes", len(inv.Frame)),
				),
			)
			// A panic still belongs to the barrier; mark the span first.
			defer func() {
				if p := recover(); p != nil {
					span.RecordError(fmt.Errorf("panic: %v", p))
					span.SetStatus(codes.Error, "handler panic")
					span.End()
					panic(p)
				}
				span.End()
			}()

			err := next(ctx, inv)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}
