package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaynet/relayhttp/relay"
	"github.com/relaynet/relayhttp/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("relayd exited", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("relayd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a relayd YAML config file")
	addr := fs.String("addr", "", "override the listen address from the config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Debug,
	})))

	slog.Info("relayd starting", "version", version.String(), "addr", cfg.Addr, "tls_mode", cfg.TLSMode)

	registry := prometheus.NewRegistry()
	metrics := relay.NewMetrics(registry)

	acceptor, err := buildAcceptor(cfg)
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}

	defaults := relay.NewHeaderSet(relay.HeaderPair{Name: "Server", Value: "relayd/" + version.Version})
	router := relay.NewRouterBuilder(defaults).Build()

	binding, err := relay.NewBinding(newEchoBackend())
	if err != nil {
		return err
	}

	server, err := relay.NewServer(relay.Config{
		Addr:              cfg.Addr,
		Binding:           binding,
		Router:            router,
		Acceptor:          acceptor,
		Metrics:           metrics,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	serveErr := server.ListenAndServe(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel2()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	return serveErr
}

func buildAcceptor(cfg appConfig) (relay.Acceptor, error) {
	switch cfg.TLSMode {
	case "", "none":
		return nil, nil
	case "static":
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, fmt.Errorf("tls_mode static requires cert_file and key_file")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		return relay.NewStaticAcceptor(&tls.Config{Certificates: []tls.Certificate{cert}}), nil
	case "managed":
		magic := relay.NewManagedConfig(relay.ACMEOptions{
			Email:   cfg.ACMEEmail,
			CA:      cfg.ACMEDirectoryURL,
			Agreed:  cfg.ACMEAgreed,
			Staging: cfg.ACMEStaging,
		})
		return relay.NewManagedAcceptor(magic, cfg.AllowedSNI), nil
	default:
		return nil, fmt.Errorf("unknown tls_mode %q", cfg.TLSMode)
	}
}
