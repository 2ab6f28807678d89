package http

import (
	"go.opentelemetry.io/otel/propagation"

	"github.com/freekieb7/cobble/alloc"
	"github.com/freekieb7/cobble/strbuf"
)

// HeaderCarrier exposes the assembled header table to OpenTelemetry
// propagators. Lookups are case-sensitive, like Request.Header.
type HeaderCarrier struct {
	r *Request
}

var _ propagation.TextMapCarrier = HeaderCarrier{}

func (c HeaderCarrier) Get(key string) string {
	v, _ := c.r.Header(key)
	return v
}

// Set stores value under key, replacing an existing value. Failures are
// dropped since the carrier interface has no error return.
func (c HeaderCarrier) Set(key, value string) {
	if c.r.headers == nil {
		return
	}
	k, err := strbuf.New(alloc.Heap{}, []byte(key))
	if err != nil {
		return
	}
	defer k.Release()

	v, err := strbuf.New(c.r.alloc, []byte(value))
	if err != nil {
		return
	}
	if e := c.r.headers.Get(k); e != nil {
		e.Value.Release()
		e.Value = v
		return
	}
	if err := c.r.headers.Set(k, v); err != nil {
		v.Release()
	}
}

func (c HeaderCarrier) Keys() []string {
	if c.r.headers == nil {
		return nil
	}
	keys := make([]string, 0, c.r.headers.Len())
	for k := range c.r.headers.All() {
		keys = append(keys, k.String())
	}
	return keys
}
