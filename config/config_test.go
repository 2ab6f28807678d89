package config

import (
	"flag"
	"testing"

	"github.com/freekieb7/cobble/hashtable"
	"github.com/freekieb7/cobble/test"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(env(nil))
	test.AssertNoError(t, err)

	test.AssertEqual(t, "0.0.0.0", cfg.IPv4)
	test.AssertEqual(t, "::", cfg.IPv6)
	test.AssertEqual(t, 3000, cfg.Port)
	test.AssertEqual(t, 4096, cfg.Backlog)
	test.AssertEqual(t, 30, cfg.HeaderCapacity)
	test.AssertEqual(t, 0.75, cfg.HeaderLoadFactor)
	test.AssertNoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("COBBLE_IPV6", "")
	t.Setenv("COBBLE_PORT", "8080")
	t.Setenv("COBBLE_MAX_REQUEST_BYTES", "4096")

	cfg, err := FromEnv()
	test.AssertNoError(t, err)
	test.AssertEqual(t, "", cfg.IPv6)
	test.AssertEqual(t, 8080, cfg.Port)
	test.AssertEqual(t, int64(4096), cfg.MaxRequestBytes)
	test.AssertNoError(t, cfg.Validate())
}

func TestFromEnvInvalid(t *testing.T) {
	for _, name := range []string{"COBBLE_PORT", "COBBLE_BACKLOG", "COBBLE_MAX_REQUEST_BYTES", "COBBLE_HEADER_LOAD_FACTOR"} {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(env(map[string]string{name: "lots"}))
			test.AssertErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := fromLookup(env(map[string]string{"COBBLE_PORT": "8080"}))
	test.AssertNoError(t, err)

	fs := flag.NewFlagSet("cobble", flag.ContinueOnError)
	cfg.Flags(fs)
	test.AssertNoError(t, fs.Parse([]string{"-port", "9090", "-ipv4", ""}))

	test.AssertEqual(t, 9090, cfg.Port)
	test.AssertEqual(t, "", cfg.IPv4)
	test.AssertEqual(t, "::", cfg.IPv6)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"no address", func(c *Config) { c.IPv4, c.IPv6 = "", "" }, ErrNoAddress},
		{"port", func(c *Config) { c.Port = 65536 }, ErrInvalidPort},
		{"backlog", func(c *Config) { c.Backlog = 0 }, ErrInvalidBacklog},
		{"header capacity", func(c *Config) { c.HeaderCapacity = 0 }, hashtable.ErrInvalidCapacity},
		{"load factor", func(c *Config) { c.HeaderLoadFactor = 1.5 }, hashtable.ErrInvalidLoadFactor},
		{"read buffer", func(c *Config) { c.ReadBufferCap = 0 }, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			test.AssertErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}

func TestOptions(t *testing.T) {
	test.AssertEqual(t, 3, len(Default().Options()))
}
