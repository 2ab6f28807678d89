package http

import (
	"log/slog"

	"github.com/freekieb7/cobble/alloc"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	logger           *slog.Logger
	alloc            alloc.Allocator
	meterProvider    metric.MeterProvider
	tracerProvider   trace.TracerProvider
	propagator       propagation.TextMapPropagator
	headerCapacity   int
	headerLoadFactor float32
	maxRequestBytes  int64
	readBufferCap    int
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger:           otelslog.NewLogger(instrumentationName),
		alloc:            alloc.Default(),
		meterProvider:    otel.GetMeterProvider(),
		tracerProvider:   otel.GetTracerProvider(),
		propagator:       otel.GetTextMapPropagator(),
		headerCapacity:   DefaultHeaderCapacity,
		headerLoadFactor: DefaultHeaderLoadFactor,
		maxRequestBytes:  DefaultMaxRequestBytes,
		readBufferCap:    DefaultReadBufferCap,
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAllocator sets the allocator for read buffers and request data.
func WithAllocator(a alloc.Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.alloc = a
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithPropagator sets how trace context is extracted from request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		if p != nil {
			o.propagator = p
		}
	}
}

// WithHeaderTable sets the initial capacity and load factor of each
// request's header table.
func WithHeaderTable(capacity int, loadFactor float32) Option {
	return func(o *options) {
		o.headerCapacity = capacity
		o.headerLoadFactor = loadFactor
	}
}

// WithMaxRequestBytes caps the memory a single connection may hold for
// url, headers and body. Zero or less disables the cap.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

func WithReadBufferCap(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBufferCap = n
		}
	}
}
