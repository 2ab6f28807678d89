package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/panjf2000/gnet/v2"

	"github.com/freekieb7/cobble/alloc"
	"github.com/freekieb7/cobble/hashtable"
	"github.com/freekieb7/cobble/http/parser"
	"github.com/freekieb7/cobble/strbuf"
	"github.com/freekieb7/cobble/uuid"
)

// Server owns the IPv4 and IPv6 listeners and a single event loop that
// serves every connection. Each connection carries exactly one request:
// it is closed after the first read whatever the outcome.
type Server struct {
	gnet.BuiltinEventEngine

	addrs   []string
	handler Handler
	opts    options
	ins     *instruments
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	engine  gnet.Engine
	booted  chan struct{}
	done    chan struct{}
	err     error
}

// Configure validates the listen addresses and returns a server that is
// not yet listening. An empty ipv4 or ipv6 disables that family; at least
// one must be set. No socket is bound here: bind failures surface from
// Listen, which leaves no listener open when it fails.
func Configure(ipv4, ipv6 string, port int, handler Handler, opts ...Option) (*Server, error) {
	if ipv4 == "" && ipv6 == "" {
		return nil, ErrNoListener
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	var addrs []string
	if ipv4 != "" {
		addr, err := netip.ParseAddr(ipv4)
		if err != nil || !addr.Is4() {
			return nil, fmt.Errorf("%w: %q is not an ipv4 address", ErrInvalidAddress, ipv4)
		}
		addrs = append(addrs, "tcp4://"+netip.AddrPortFrom(addr, uint16(port)).String())
	}
	if ipv6 != "" {
		addr, err := netip.ParseAddr(ipv6)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return nil, fmt.Errorf("%w: %q is not an ipv6 address", ErrInvalidAddress, ipv6)
		}
		addrs = append(addrs, "tcp6://"+netip.AddrPortFrom(addr, uint16(port)).String())
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := hashtable.New[*strbuf.Buffer](o.headerCapacity, o.headerLoadFactor); err != nil {
		return nil, fmt.Errorf("http: header table: %w", err)
	}

	ins, err := newInstruments(o.meterProvider, o.tracerProvider)
	if err != nil {
		return nil, err
	}

	return &Server{
		addrs:   addrs,
		handler: handler,
		opts:    o,
		ins:     ins,
		logger:  o.logger,
		booted:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Addrs returns the configured listen addresses in gnet protocol form.
func (s *Server) Addrs() []string {
	return append([]string(nil), s.addrs...)
}

// Listen starts the event loop and blocks until every listener is bound
// or startup failed. The accept queue is sized by the kernel
// (net.core.somaxconn); backlog is validated and reported only.
func (s *Server) Listen(backlog int) error {
	if backlog <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBacklog, backlog)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServerStarted
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		s.err = gnet.Rotate(s, s.addrs,
			gnet.WithMulticore(false),
			gnet.WithNumEventLoop(1),
			gnet.WithReadBufferCap(s.opts.readBufferCap),
			gnet.WithTCPNoDelay(gnet.TCPNoDelay),
			gnet.WithLogger(gnetLogger{logger: s.logger}),
		)
		close(s.done)
	}()

	select {
	case <-s.booted:
		s.logger.Info("Listening", "addrs", s.addrs, "backlog", backlog)
		return nil
	case <-s.done:
		return fmt.Errorf("http: listen: %w", s.err)
	}
}

// Wait blocks until the event loop has stopped.
func (s *Server) Wait() error {
	if !s.isStarted() {
		return ErrServerNotStarted
	}
	<-s.done
	return s.err
}

// Shutdown stops accepting, closes the listeners and every open
// connection, then waits for the event loop to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.isStarted() {
		return ErrServerNotStarted
	}

	select {
	case <-s.booted:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.engine.Stop(ctx); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	close(s.booted)
	return gnet.None
}

func (s *Server) OnShutdown(gnet.Engine) {
	s.logger.Info("Server stopped", "addrs", s.addrs)
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if err := s.open(c); err != nil {
		s.logger.Error("Failed to open connection", "remote", c.RemoteAddr(), "error", err)
		return nil, gnet.Close
	}
	return nil, gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	req, ok := c.Context().(*Request)
	if !ok {
		return gnet.Close
	}

	data, err := c.Next(-1)
	if err != nil {
		s.logger.Error("Failed to read", "conn", req.ConnID(), "error", err)
		return gnet.Close
	}
	if len(data) > 0 {
		s.read(req, data)
	}

	// One read per connection; no keep-alive.
	return gnet.Close
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.close(c, err)
	return gnet.None
}

func (s *Server) open(c gnet.Conn) error {
	req, err := newRequest(uuid.NewV4(), c.RemoteAddr(), s.handler, &s.opts, s.ins)
	if err != nil {
		return err
	}
	c.SetContext(req)
	s.ins.connOpened(context.Background())

	s.logger.Debug("Connection opened", "conn", req.ConnID(), "remote", c.RemoteAddr())
	return nil
}

// read copies data into a buffer from the server allocator and feeds it
// to the request's parser.
func (s *Server) read(req *Request, data []byte) {
	buf, err := s.opts.alloc.Alloc(alloc.GoodSize(len(data)))
	if err != nil {
		s.logger.Error("Failed to allocate read buffer", "conn", req.ConnID(), "error", err)
		return
	}
	defer s.opts.alloc.Free(buf)

	n := copy(buf, data)
	errno := req.Execute(buf[:n])
	if errno == parser.ErrnoOK {
		s.logger.Debug("Parse success", "conn", req.ConnID())
		return
	}

	s.ins.parseError(context.Background(), errno)
	s.logger.Warn("Parse error",
		"conn", req.ConnID(),
		"remote", req.RemoteAddr(),
		"errno", errno.String(),
		"reason", req.parser.Reason(),
	)
}

func (s *Server) close(c gnet.Conn, err error) {
	req, ok := c.Context().(*Request)
	if !ok {
		return
	}
	c.SetContext(nil)
	req.Release()
	s.ins.connClosed(context.Background())

	if err != nil {
		s.logger.Debug("Connection closed", "conn", req.ConnID(), "error", err)
		return
	}
	s.logger.Debug("Connection closed", "conn", req.ConnID())
}
