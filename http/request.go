package http

import (
	"context"
	"net"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/freekieb7/cobble/alloc"
	"github.com/freekieb7/cobble/hashtable"
	"github.com/freekieb7/cobble/http/parser"
	"github.com/freekieb7/cobble/strbuf"
	"github.com/freekieb7/cobble/uuid"
)

// Request assembles one HTTP message from parser events. It is owned by a
// single connection and must not be used after Release.
type Request struct {
	id     uuid.UUID
	remote net.Addr

	parser  *parser.Parser
	alloc   alloc.Allocator
	handler Handler
	ins     *instruments
	prop    propagation.TextMapPropagator
	ctx     context.Context

	headers *hashtable.Table[*strbuf.Buffer]
	url     *strbuf.Buffer
	body    []byte
	bodyLen int

	// pending header. hkStored means hk belongs to the header table.
	hk        *strbuf.Buffer
	hkStored  bool
	fieldDone bool
	hv        *strbuf.Buffer

	dispatched bool
	released   bool
}

// NewRequest returns a standalone assembler that calls handler once the
// message fed through Execute is complete.
func NewRequest(handler Handler, opts ...Option) (*Request, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ins, err := newInstruments(o.meterProvider, o.tracerProvider)
	if err != nil {
		return nil, err
	}
	return newRequest(uuid.NewV4(), nil, handler, &o, ins)
}

func newRequest(id uuid.UUID, remote net.Addr, handler Handler, o *options, ins *instruments) (*Request, error) {
	headers, err := hashtable.New[*strbuf.Buffer](o.headerCapacity, o.headerLoadFactor)
	if err != nil {
		return nil, err
	}

	a := o.alloc
	if o.maxRequestBytes > 0 {
		a = alloc.NewLimit(a, o.maxRequestBytes)
	}

	r := &Request{
		id:      id,
		remote:  remote,
		alloc:   a,
		handler: handler,
		ins:     ins,
		prop:    o.propagator,
		ctx:     context.Background(),
		headers: headers,
	}
	r.parser = parser.New(r)
	return r, nil
}

// Execute feeds bytes read from the connection to the parser.
func (r *Request) Execute(data []byte) parser.Errno {
	if r.released {
		return parser.ErrnoInternal
	}
	return r.parser.Execute(data)
}

// Err returns the parse error recorded by Execute, if any.
func (r *Request) Err() error {
	return r.parser.Err()
}

func (r *Request) Method() string {
	return r.parser.Method().String()
}

// Version returns the protocol version, e.g. "HTTP/1.1".
func (r *Request) Version() string {
	major, minor := r.parser.Version()
	return "HTTP/" + strconv.Itoa(int(major)) + "." + strconv.Itoa(int(minor))
}

func (r *Request) URL() string {
	if r.url == nil {
		return ""
	}
	return r.url.String()
}

// Header returns the value stored under name. Names match exactly as the
// client sent them.
func (r *Request) Header(name string) (string, bool) {
	if r.headers == nil || name == "" {
		return "", false
	}
	k, err := strbuf.New(alloc.Heap{}, []byte(name))
	if err != nil {
		return "", false
	}
	e := r.headers.Get(k)
	if e == nil {
		return "", false
	}
	return e.Value.String(), true
}

// Headers returns the header table. It must be treated as read-only.
func (r *Request) Headers() *hashtable.Table[*strbuf.Buffer] {
	return r.headers
}

func (r *Request) Body() []byte {
	return r.body[:r.bodyLen]
}

func (r *Request) BodyLength() int {
	return r.bodyLen
}

func (r *Request) ConnID() uuid.UUID {
	return r.id
}

func (r *Request) RemoteAddr() net.Addr {
	return r.remote
}

// Context carries the request span while the handler runs.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Carrier adapts the headers for OpenTelemetry propagators.
func (r *Request) Carrier() HeaderCarrier {
	return HeaderCarrier{r: r}
}

// Release returns every buffer held by the request to its allocator.
func (r *Request) Release() {
	if r.released {
		return
	}
	r.released = true

	r.clearPending()
	if r.headers != nil {
		r.headers.Release((*strbuf.Buffer).Release)
		r.headers = nil
	}
	r.url.Release()
	r.url = nil
	if r.body != nil {
		r.alloc.Free(r.body)
		r.body = nil
	}
	r.bodyLen = 0
}

func (r *Request) clearPending() {
	if !r.hkStored {
		r.hk.Release()
	}
	r.hk = nil
	r.hkStored = false
	r.fieldDone = false
	r.hv.Release()
	r.hv = nil
}

// accumulate appends fragment to *dst, allocating it on first use.
func (r *Request) accumulate(dst **strbuf.Buffer, fragment []byte) error {
	if *dst == nil {
		b, err := strbuf.New(r.alloc, fragment)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
	return (*dst).Append(fragment)
}

func (r *Request) OnURL(fragment []byte) error {
	return r.accumulate(&r.url, fragment)
}

func (r *Request) OnHeaderField(fragment []byte) error {
	if r.fieldDone {
		return ErrUnexpectedField
	}
	return r.accumulate(&r.hk, fragment)
}

func (r *Request) OnHeaderFieldComplete() error {
	if r.hk == nil {
		return ErrMissingHeaderField
	}
	r.fieldDone = true

	if e := r.headers.Get(r.hk); e != nil {
		r.hk.Release()
		r.hk = e.Key
		r.hkStored = true
	}
	return nil
}

func (r *Request) OnHeaderValue(fragment []byte) error {
	if !r.fieldDone {
		return ErrMissingHeaderField
	}
	return r.accumulate(&r.hv, fragment)
}

func (r *Request) OnHeaderValueComplete() error {
	if r.hk == nil || !r.fieldDone {
		return ErrMissingHeaderField
	}
	if r.hv == nil {
		return ErrMissingHeaderValue
	}

	if r.hkStored {
		e := r.headers.Get(r.hk)
		if e == nil {
			return ErrMissingHeaderField
		}
		// Repeated headers fold by plain concatenation.
		if err := e.Value.Concat(r.hv); err != nil {
			return err
		}
	} else {
		if err := r.headers.Set(r.hk, r.hv); err != nil {
			return err
		}
		r.hv = nil // owned by the table now
	}

	r.clearPending()
	return nil
}

func (r *Request) OnHeadersComplete() (parser.HeadersAction, error) {
	if r.hk != nil || r.hv != nil {
		return parser.Continue, ErrIncompleteHeader
	}

	switch r.parser.Method() {
	case parser.MethodGet, parser.MethodHead:
		return parser.SkipBody, nil
	}
	return parser.Continue, nil
}

func (r *Request) OnBody(fragment []byte) error {
	if len(fragment) == 0 {
		return nil
	}

	body, err := r.alloc.Realloc(r.body, r.bodyLen+len(fragment))
	if err != nil {
		return err
	}
	copy(body[r.bodyLen:], fragment)
	r.body = body
	r.bodyLen += len(fragment)
	return nil
}

func (r *Request) OnMessageComplete() error {
	if r.dispatched {
		return ErrAlreadyDispatched
	}
	r.dispatched = true

	method := r.Method()
	ctx := r.prop.Extract(context.Background(), r.Carrier())
	ctx, span := r.ins.tracer.Start(ctx, "http.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", r.URL()),
			attribute.String("network.protocol.version", r.Version()[len("HTTP/"):]),
			attribute.Int("http.request.body.size", r.bodyLen),
		),
	)
	defer span.End()

	r.ctx = ctx
	defer func() { r.ctx = context.Background() }()

	r.ins.request(ctx, method, r.bodyLen)

	if err := r.handler(r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
