// Package main provides the stub resolver lookup API daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/piwi3910/dns-stub/pkg/api"
	"github.com/piwi3910/dns-stub/pkg/config"
	"github.com/piwi3910/dns-stub/pkg/query"
	"github.com/piwi3910/dns-stub/pkg/resolver"
)

const version = "0.1.0"

// Graceful shutdown budget.
const gracefulShutdownTimeout = 10 * time.Second

type daemonConfig struct {
	configPath string
	listenAddr string
}

func parseFlags() *daemonConfig {
	cfg := &daemonConfig{
		configPath: "",
		listenAddr: "",
	}
	flag.StringVar(&cfg.configPath, "config", "dns-stub.yaml", "Path to YAML configuration file")
	flag.StringVar(&cfg.listenAddr, "listen", "", "Override API listen address from config")
	flag.Parse()

	return cfg
}

func main() {
	flags := parseFlags()

	log.Printf("Starting dns-lookupd v%s", version)
	log.Printf("Go version: %s", runtime.Version())

	cfg, err := config.LoadFromFileOrDefault(flags.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if flags.listenAddr != "" {
		cfg.API.ListenAddress = flags.listenAddr
	}

	res := buildResolver(cfg)
	log.Printf("Nameservers: %v", res.Servers())

	server := api.NewServer(cfg, res)

	// Serve until signalled.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitAndShutdown(server, errCh)
}

// buildResolver assembles the resolver from the loaded configuration.
func buildResolver(cfg *config.Config) *resolver.Resolver {
	res, err := resolver.NewResolver(resolver.Config{
		Servers:     cfg.Servers(),
		Timeout:     cfg.Resolver.Timeout,
		MaxAttempts: cfg.Resolver.MaxAttempts,
		Lifetime:    cfg.Resolver.Lifetime,
		Shuffle:     cfg.Resolver.Shuffle,
		Exchanger:   query.NewClient(query.DefaultClientConfig()),
	})
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}

	return res
}

// waitAndShutdown blocks until a shutdown signal or server error, then shuts
// the API server down gracefully.
func waitAndShutdown(server *api.Server, errCh <-chan error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
}
