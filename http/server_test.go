package http

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/panjf2000/gnet/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/freekieb7/cobble/alloc"
	"github.com/freekieb7/cobble/test"
)

// fakeConn is the slice of gnet.Conn the server touches. Calling anything
// else panics through the nil embedded interface.
type fakeConn struct {
	gnet.Conn
	ctx     any
	in      []byte
	readErr error
}

func (c *fakeConn) Context() any         { return c.ctx }
func (c *fakeConn) SetContext(ctx any)   { c.ctx = ctx }
func (c *fakeConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000} }

func (c *fakeConn) Next(int) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	b := c.in
	c.in = nil
	return b, nil
}

func newTestServer(t *testing.T, handler Handler, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := Configure("127.0.0.1", "", 0, handler, opts...)
	test.AssertNoError(t, err)
	return s
}

func TestConfigure(t *testing.T) {
	noop := func(*Request) error { return nil }

	tests := []struct {
		name    string
		ipv4    string
		ipv6    string
		port    int
		handler Handler
		addrs   []string
		err     error
	}{
		{name: "dual stack", ipv4: "0.0.0.0", ipv6: "::", port: 3000, handler: noop,
			addrs: []string{"tcp4://0.0.0.0:3000", "tcp6://[::]:3000"}},
		{name: "ipv4 only", ipv4: "127.0.0.1", port: 8080, handler: noop,
			addrs: []string{"tcp4://127.0.0.1:8080"}},
		{name: "ipv6 only", ipv6: "::1", port: 8080, handler: noop,
			addrs: []string{"tcp6://[::1]:8080"}},
		{name: "no family", port: 3000, handler: noop, err: ErrNoListener},
		{name: "v6 in v4 slot", ipv4: "::1", port: 3000, handler: noop, err: ErrInvalidAddress},
		{name: "v4 in v6 slot", ipv6: "127.0.0.1", port: 3000, handler: noop, err: ErrInvalidAddress},
		{name: "garbage", ipv4: "localhost", port: 3000, handler: noop, err: ErrInvalidAddress},
		{name: "port too large", ipv4: "0.0.0.0", port: 70000, handler: noop, err: ErrInvalidPort},
		{name: "negative port", ipv4: "0.0.0.0", port: -1, handler: noop, err: ErrInvalidPort},
		{name: "nil handler", ipv4: "0.0.0.0", port: 3000, err: ErrNilHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Configure(tt.ipv4, tt.ipv6, tt.port, tt.handler, WithLogger(discardLogger()))
			if tt.err != nil {
				test.AssertErrorIs(t, err, tt.err)
				test.AssertTrue(t, s == nil, "server returned on error")
				return
			}
			test.AssertNoError(t, err)

			addrs := s.Addrs()
			test.AssertEqual(t, len(tt.addrs), len(addrs))
			for i := range tt.addrs {
				test.AssertEqual(t, tt.addrs[i], addrs[i])
			}
		})
	}
}

func TestConfigureRejectsBadHeaderTable(t *testing.T) {
	_, err := Configure("0.0.0.0", "", 3000, func(*Request) error { return nil },
		WithLogger(discardLogger()), WithHeaderTable(0, 0.75))
	test.AssertTrue(t, err != nil, "expected an error for a zero capacity header table")
}

// Every read event closes the connection and releases everything the
// connection allocated, whatever the outcome of the read.
func TestServerClosesAfterEveryRead(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		readErr error
		maxReq  int64
		calls   int
	}{
		{name: "success", input: "GET /x HTTP/1.1\r\nHost: test\r\n\r\n", calls: 1},
		{name: "partial request", input: "GET /x HTTP/1.1\r\nHost: te"},
		{name: "parse error", input: "BREW /pot HTTP/1.1\r\n\r\n"},
		{name: "data after message", input: "GET / HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n", calls: 1},
		{name: "eof", input: ""},
		{name: "read error", readErr: errors.New("connection reset")},
		{name: "allocation failure", input: "GET /longer/than/the/request/budget HTTP/1.1\r\n\r\n", maxReq: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := alloc.NewCounter(alloc.NewPool())
			calls := 0
			opts := []Option{WithAllocator(counter)}
			if tt.maxReq > 0 {
				opts = append(opts, WithMaxRequestBytes(tt.maxReq))
			}
			s := newTestServer(t, func(*Request) error { calls++; return nil }, opts...)

			c := &fakeConn{in: []byte(tt.input), readErr: tt.readErr}
			_, action := s.OnOpen(c)
			test.AssertEqual(t, gnet.None, action)
			test.AssertTrue(t, c.ctx != nil, "no request attached to the connection")

			test.AssertEqual(t, gnet.Close, s.OnTraffic(c))
			s.OnClose(c, nil)

			test.AssertEqual(t, tt.calls, calls)
			test.AssertTrue(t, c.ctx == nil, "request still attached after close")
			blocks, bytes := counter.Live()
			test.AssertEqual(t, int64(0), blocks)
			test.AssertEqual(t, int64(0), bytes)
		})
	}
}

func TestServerCloseWithoutTraffic(t *testing.T) {
	counter := alloc.NewCounter(nil)
	s := newTestServer(t, func(*Request) error { return nil }, WithAllocator(counter))

	c := &fakeConn{}
	s.OnOpen(c)
	s.OnClose(c, io.EOF)

	blocks, _ := counter.Live()
	test.AssertEqual(t, int64(0), blocks)
	test.AssertEqual(t, gnet.Close, s.OnTraffic(c))
}

func TestServerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := newTestServer(t, func(*Request) error { return nil }, WithMeterProvider(mp))

	for _, input := range []string{
		"GET / HTTP/1.1\r\n\r\n",
		"GET / HTTP/9.9\r\n\r\n",
	} {
		c := &fakeConn{in: []byte(input)}
		s.OnOpen(c)
		s.OnTraffic(c)
		s.OnClose(c, nil)
	}

	rm := collect(t, reader)
	test.AssertEqual(t, int64(2), sumOf(t, rm, "cobble.connections.opened"))
	test.AssertEqual(t, int64(0), sumOf(t, rm, "cobble.connections.active"))
	test.AssertEqual(t, int64(1), sumOf(t, rm, "cobble.requests"))
	test.AssertEqual(t, int64(1), sumOf(t, rm, "cobble.parse.errors"))
}

func TestServerLifecycleErrors(t *testing.T) {
	s := newTestServer(t, func(*Request) error { return nil })

	test.AssertErrorIs(t, s.Shutdown(context.Background()), ErrServerNotStarted)
	test.AssertErrorIs(t, s.Wait(), ErrServerNotStarted)
	test.AssertErrorIs(t, s.Listen(0), ErrInvalidBacklog)
}

func TestServerListenFailsWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	test.AssertNoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s, err := Configure("127.0.0.1", "", port, func(*Request) error { return nil },
		WithLogger(discardLogger()))
	test.AssertNoError(t, err)

	test.AssertTrue(t, s.Listen(16) != nil, "listen on a bound port should fail")
}

func TestServerEndToEnd(t *testing.T) {
	port := freePort(t)
	counter := alloc.NewCounter(alloc.NewPool())

	got := make(chan captured, 1)
	s, err := Configure("127.0.0.1", "", port, func(req *Request) error {
		var c captured
		err := c.handler(req)
		got <- c
		return err
	}, WithLogger(discardLogger()), WithAllocator(counter))
	test.AssertNoError(t, err)
	test.AssertNoError(t, s.Listen(DefaultBacklog))
	test.AssertErrorIs(t, s.Listen(DefaultBacklog), ErrServerStarted)

	conn, err := net.Dial("tcp4", "127.0.0.1:"+strconv.Itoa(port))
	test.AssertNoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /x HTTP/1.1\r\nHost: test\r\n\r\n"))
	test.AssertNoError(t, err)

	select {
	case c := <-got:
		test.AssertEqual(t, "GET", c.method)
		test.AssertEqual(t, "/x", c.url)
		test.AssertEqual(t, 1, len(c.headers))
		test.AssertEqual(t, "test", c.headers["Host"])
		test.AssertEqual(t, "", c.body)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	// The server closes the connection without writing anything.
	test.AssertNoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	rest, err := io.ReadAll(conn)
	test.AssertNoError(t, err)
	test.AssertEqual(t, 0, len(rest))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.AssertNoError(t, s.Shutdown(ctx))

	blocks, _ := counter.Live()
	test.AssertEqual(t, int64(0), blocks)
}

func TestServerDualStack(t *testing.T) {
	port := freeDualStackPort(t)
	counter := alloc.NewCounter(alloc.NewPool())

	remotes := make(chan string, 2)
	s, err := Configure("127.0.0.1", "::1", port, func(req *Request) error {
		remotes <- req.RemoteAddr().String() + " " + req.URL()
		return nil
	}, WithLogger(discardLogger()), WithAllocator(counter))
	test.AssertNoError(t, err)
	test.AssertNoError(t, s.Listen(DefaultBacklog))

	for _, addr := range []struct{ network, host string }{
		{"tcp4", "127.0.0.1"},
		{"tcp6", "[::1]"},
	} {
		conn, err := net.Dial(addr.network, addr.host+":"+strconv.Itoa(port))
		test.AssertNoError(t, err)

		_, err = conn.Write([]byte("GET /d HTTP/1.1\r\nHost: dual\r\n\r\n"))
		test.AssertNoError(t, err)

		select {
		case got := <-remotes:
			test.AssertTrue(t, strings.HasPrefix(got, addr.host+":"), "served over the wrong family: "+got)
			test.AssertTrue(t, strings.HasSuffix(got, " /d"), "wrong url: "+got)
		case <-time.After(5 * time.Second):
			t.Fatalf("handler was not called over %s", addr.network)
		}

		test.AssertNoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		rest, err := io.ReadAll(conn)
		test.AssertNoError(t, err)
		test.AssertEqual(t, 0, len(rest))
		conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.AssertNoError(t, s.Shutdown(ctx))

	blocks, _ := counter.Live()
	test.AssertEqual(t, int64(0), blocks)
}

// freeDualStackPort returns a port that is free on both loopbacks, or
// skips the test when there is no IPv6 loopback.
func freeDualStackPort(t *testing.T) int {
	t.Helper()

	for range 10 {
		ln4, err := net.Listen("tcp4", "127.0.0.1:0")
		test.AssertNoError(t, err)
		port := ln4.Addr().(*net.TCPAddr).Port

		ln6, err := net.Listen("tcp6", "[::1]:"+strconv.Itoa(port))
		ln4.Close()
		if err == nil {
			ln6.Close()
			return port
		}
		any6, err := net.Listen("tcp6", "[::1]:0")
		if err != nil {
			t.Skipf("no ipv6 loopback: %v", err)
		}
		any6.Close()
	}
	t.Skip("no port free on both loopbacks")
	return 0
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	test.AssertNoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
