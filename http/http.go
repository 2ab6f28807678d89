// Package http is a minimal non-blocking HTTP/1.x server core. A Server
// accepts connections on IPv4 and/or IPv6, assembles exactly one Request
// per connection from parser events, hands it to a Handler and closes the
// connection.
package http

import "errors"

const (
	instrumentationName = "github.com/freekieb7/cobble/http"

	DefaultPort             = 3000
	DefaultBacklog          = 4096 // SOMAXCONN
	DefaultHeaderCapacity   = 30
	DefaultHeaderLoadFactor = 0.75
	DefaultReadBufferCap    = 64 * 1024
	DefaultMaxRequestBytes  = 1 << 20
)

// Handler is called once per complete request. A non-nil error aborts the
// message. The request and everything it returns are only valid during
// the call.
type Handler func(req *Request) error

var (
	ErrNoListener       = errors.New("http: no ipv4 or ipv6 address configured")
	ErrInvalidAddress   = errors.New("http: invalid listen address")
	ErrInvalidPort      = errors.New("http: invalid port")
	ErrNilHandler       = errors.New("http: nil handler")
	ErrInvalidBacklog   = errors.New("http: backlog must be positive")
	ErrServerStarted    = errors.New("http: server already started")
	ErrServerNotStarted = errors.New("http: server not started")

	ErrMissingHeaderField = errors.New("http: header value without header field")
	ErrMissingHeaderValue = errors.New("http: header complete without value")
	ErrUnexpectedField    = errors.New("http: header field after field complete")
	ErrIncompleteHeader   = errors.New("http: headers complete with a pending header")
	ErrAlreadyDispatched  = errors.New("http: request already dispatched")
)
