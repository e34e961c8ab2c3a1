// Package tracing wires the callback bus (C9) to OpenTelemetry spans, one
// per play (opened on play_start, closed on play_end) with one child span
// per task (task_start/task_result), in the style of the teacher's
// internal/observability/telemetry.go and tracer.go.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelops/kestrel/internal/bus"
)

// Config controls whether and where spans are exported.
type Config struct {
	Enabled  bool
	Endpoint string // host:port for the OTLP/HTTP collector
}

// Provider owns the tracer provider for one engine run.
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

// NewProvider builds a Provider. With cfg.Enabled false it returns a no-op
// tracer so callers never need to branch on Enabled themselves.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: otel.Tracer("kestrel")}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "kestrel"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer("kestrel"), enabled: true}, nil
}

// Shutdown flushes and closes the exporter, a no-op if tracing is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Run subscribes to b and maintains one span per play and one child span
// per (play, host, task), closing each on its matching play_end,
// task_result or host_unreachable event. Intended to be started once per
// run from cmd/kestrel.
func (p *Provider) Run(ctx context.Context, b *bus.Bus) {
	ch := b.Subscribe(ctx, 256)
	plays := make(map[string]trace.Span)
	tasks := make(map[string]trace.Span)

	playKey := func(ev bus.Event) string { return ev.Play }
	taskKey := func(ev bus.Event) string { return ev.Play + "\x00" + ev.Host + "\x00" + ev.Task }

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case bus.PlayStart:
				_, span := p.tracer.Start(ctx, "play:"+ev.Play,
					trace.WithAttributes(attribute.String("kestrel.play", ev.Play)))
				plays[playKey(ev)] = span
			case bus.PlayEnd:
				if span, ok := plays[playKey(ev)]; ok {
					span.End()
					delete(plays, playKey(ev))
				}
			case bus.TaskStart:
				parent := ctx
				if ps, ok := plays[playKey(ev)]; ok {
					parent = trace.ContextWithSpan(ctx, ps)
				}
				_, span := p.tracer.Start(parent, "task:"+ev.Task,
					trace.WithAttributes(
						attribute.String("kestrel.play", ev.Play),
						attribute.String("kestrel.host", ev.Host),
						attribute.String("kestrel.task", ev.Task),
						attribute.Int("kestrel.attempt", ev.Attempt),
					))
				tasks[taskKey(ev)] = span
			case bus.TaskResult:
				if span, ok := tasks[taskKey(ev)]; ok {
					if ev.Result != nil && ev.Result.Failed {
						span.SetStatus(codes.Error, ev.Result.Msg)
					} else {
						span.SetStatus(codes.Ok, "")
					}
					span.End()
					delete(tasks, taskKey(ev))
				}
			case bus.HostUnreachable:
				if span, ok := tasks[taskKey(ev)]; ok {
					span.SetStatus(codes.Error, "host unreachable")
					span.End()
					delete(tasks, taskKey(ev))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
