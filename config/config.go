// Package config holds the server settings. Values come from defaults,
// then COBBLE_* environment variables, then command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/freekieb7/cobble/hashtable"
	"github.com/freekieb7/cobble/http"
)

var (
	ErrNoAddress      = errors.New("config: neither ipv4 nor ipv6 is set")
	ErrInvalidPort    = errors.New("config: port out of range")
	ErrInvalidBacklog = errors.New("config: backlog must be positive")
	ErrInvalidValue   = errors.New("config: invalid value")
)

type Config struct {
	IPv4    string
	IPv6    string
	Port    int
	Backlog int

	HeaderCapacity   int
	HeaderLoadFactor float64

	MaxRequestBytes int64
	ReadBufferCap   int
}

func Default() Config {
	return Config{
		IPv4:             "0.0.0.0",
		IPv6:             "::",
		Port:             http.DefaultPort,
		Backlog:          http.DefaultBacklog,
		HeaderCapacity:   http.DefaultHeaderCapacity,
		HeaderLoadFactor: http.DefaultHeaderLoadFactor,
		MaxRequestBytes:  http.DefaultMaxRequestBytes,
		ReadBufferCap:    http.DefaultReadBufferCap,
	}
}

// FromEnv starts from Default and applies any COBBLE_* variables that are
// set. An empty COBBLE_IPV4 or COBBLE_IPV6 disables that family.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup("COBBLE_IPV4"); ok {
		cfg.IPv4 = v
	}
	if v, ok := lookup("COBBLE_IPV6"); ok {
		cfg.IPv6 = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"COBBLE_PORT", &cfg.Port},
		{"COBBLE_BACKLOG", &cfg.Backlog},
		{"COBBLE_HEADER_CAPACITY", &cfg.HeaderCapacity},
		{"COBBLE_READ_BUFFER", &cfg.ReadBufferCap},
	}
	for _, i := range ints {
		v, ok := lookup(i.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidValue, i.name, v)
		}
		*i.dst = n
	}

	if v, ok := lookup("COBBLE_MAX_REQUEST_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: COBBLE_MAX_REQUEST_BYTES=%q", ErrInvalidValue, v)
		}
		cfg.MaxRequestBytes = n
	}
	if v, ok := lookup("COBBLE_HEADER_LOAD_FACTOR"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return cfg, fmt.Errorf("%w: COBBLE_HEADER_LOAD_FACTOR=%q", ErrInvalidValue, v)
		}
		cfg.HeaderLoadFactor = f
	}

	return cfg, nil
}

// Flags binds every field to fs, using the current values as defaults.
func (c *Config) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.IPv4, "ipv4", c.IPv4, "IPv4 listen address, empty to disable")
	fs.StringVar(&c.IPv6, "ipv6", c.IPv6, "IPv6 listen address, empty to disable")
	fs.IntVar(&c.Port, "port", c.Port, "listen port")
	fs.IntVar(&c.Backlog, "backlog", c.Backlog, "accept backlog")
	fs.IntVar(&c.HeaderCapacity, "header-capacity", c.HeaderCapacity, "initial header table capacity")
	fs.Float64Var(&c.HeaderLoadFactor, "header-load-factor", c.HeaderLoadFactor, "header table load factor")
	fs.Int64Var(&c.MaxRequestBytes, "max-request-bytes", c.MaxRequestBytes, "memory budget per request, 0 for none")
	fs.IntVar(&c.ReadBufferCap, "read-buffer", c.ReadBufferCap, "per connection read buffer size")
}

func (c Config) Validate() error {
	if c.IPv4 == "" && c.IPv6 == "" {
		return ErrNoAddress
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBacklog, c.Backlog)
	}
	if c.HeaderCapacity <= 0 {
		return hashtable.ErrInvalidCapacity
	}
	if c.HeaderLoadFactor <= 0 || c.HeaderLoadFactor > 1 {
		return hashtable.ErrInvalidLoadFactor
	}
	if c.ReadBufferCap <= 0 {
		return fmt.Errorf("%w: read buffer %d", ErrInvalidValue, c.ReadBufferCap)
	}
	return nil
}

// Options translates the settings that tune the server into http options.
func (c Config) Options() []http.Option {
	return []http.Option{
		http.WithHeaderTable(c.HeaderCapacity, float32(c.HeaderLoadFactor)),
		http.WithMaxRequestBytes(c.MaxRequestBytes),
		http.WithReadBufferCap(c.ReadBufferCap),
	}
}
