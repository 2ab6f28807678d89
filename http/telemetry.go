package http

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/freekieb7/cobble/http/parser"
)

type instruments struct {
	tracer trace.Tracer

	opened      metric.Int64Counter
	active      metric.Int64UpDownCounter
	requests    metric.Int64Counter
	parseErrors metric.Int64Counter
	bodySize    metric.Int64Histogram
}

func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	ins := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	if ins.opened, err = meter.Int64Counter("cobble.connections.opened",
		metric.WithDescription("Accepted connections"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	if ins.active, err = meter.Int64UpDownCounter("cobble.connections.active",
		metric.WithDescription("Connections currently open"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	if ins.requests, err = meter.Int64Counter("cobble.requests",
		metric.WithDescription("Requests handed to the handler"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if ins.parseErrors, err = meter.Int64Counter("cobble.parse.errors",
		metric.WithDescription("Reads that ended in a parse error"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if ins.bodySize, err = meter.Int64Histogram("cobble.request.body.size",
		metric.WithDescription("Size of assembled request bodies"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return ins, nil
}

func (ins *instruments) connOpened(ctx context.Context) {
	ins.opened.Add(ctx, 1)
	ins.active.Add(ctx, 1)
}

func (ins *instruments) connClosed(ctx context.Context) {
	ins.active.Add(ctx, -1)
}

func (ins *instruments) request(ctx context.Context, method string, bodyLen int) {
	ins.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("http.method", method)))
	ins.bodySize.Record(ctx, int64(bodyLen))
}

func (ins *instruments) parseError(ctx context.Context, errno parser.Errno) {
	ins.parseErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("errno", errno.String())))
}
