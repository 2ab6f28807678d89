package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/freekieb7/cobble/config"
	"github.com/freekieb7/cobble/http"
	"github.com/freekieb7/cobble/telemetry"
)

const name = "github.com/freekieb7/cobble"

var logger = otelslog.NewLogger(name)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	cfg.Flags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	otelShutdown, err := telemetry.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Println(err)
		}
	}()

	opts := append(cfg.Options(), http.WithLogger(logger))
	server, err := http.Configure(cfg.IPv4, cfg.IPv6, cfg.Port, printRequest, opts...)
	if err != nil {
		return err
	}
	if err := server.Listen(cfg.Backlog); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Wait()
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// printRequest dumps every request to stdout.
func printRequest(req *http.Request) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Method: %s\n", req.Method())
	fmt.Fprintf(&sb, "URL: %s\n", req.URL())
	fmt.Fprintf(&sb, "Version: %s\n", req.Version())

	sb.WriteString("Headers:\n")
	it := req.Headers().Iterator()
	for it.Next() {
		e := it.Entry()
		fmt.Fprintf(&sb, "  %s: %s\n", e.Key.Bytes(), e.Value.Bytes())
	}

	fmt.Fprintf(&sb, "Body (%d): %s\n", req.BodyLength(), req.Body())

	_, err := os.Stdout.WriteString(sb.String())
	return err
}
