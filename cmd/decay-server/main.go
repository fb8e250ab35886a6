package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jacksongoode/decay/internal/config"
	"github.com/jacksongoode/decay/internal/httpserver"
	"github.com/jacksongoode/decay/internal/metrics"
	"github.com/jacksongoode/decay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := config.NewLogger(cfg)

	logger.Info("starting decay-server",
		"listen_addr", cfg.ListenAddr(),
		"tls_enabled", cfg.TLSEnabled,
		"static_dir", cfg.StaticDir,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"idle_timeout", cfg.IdleTimeout,
		"idle_check_interval", cfg.IdleCheckInterval,
		"turn_rest_enabled", cfg.TURNRESTEnabled(),
	)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv, err := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure http server", "err", err)
		os.Exit(2)
	}

	m := metrics.New()
	sig := signaling.NewServer(signaling.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		IdleTimeout:       cfg.IdleTimeout,
		IdleCheckInterval: cfg.IdleCheckInterval,
		MaxMessageBytes:   cfg.MaxSignalingMessageBytes,
		Logger:            logger,
		Metrics:           m,
	})
	srv.Mux().Handle("GET /ws", sig)
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.ListenAddr(), "err", err)
		os.Exit(1)
	}

	var g errgroup.Group
	g.Go(func() error {
		return srv.Serve(ln)
	})

	if cfg.TLSEnabled {
		tlsLn, err := net.Listen("tcp", cfg.TLSListenAddr())
		if err != nil {
			logger.Error("failed to listen", "addr", cfg.TLSListenAddr(), "err", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return srv.ServeTLS(tlsLn)
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- g.Wait()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sig.Close()

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, built string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	return commit, built
}
