package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/config"
	"github.com/signalnine/npubench/internal/docker"
	"github.com/signalnine/npubench/internal/metrics"
	"github.com/signalnine/npubench/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagListen      string
	flagServeModels string
	flagRunner      string
	flagTimeout     time.Duration
	flagBackend     string
	flagMetricsAddr string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board server",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default :9999)")
	cmd.Flags().StringVar(&flagServeModels, "model-dir", "", "directory for received bundles")
	cmd.Flags().StringVar(&flagRunner, "runner", "", "benchmark executable")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-invocation timeout")
	cmd.Flags().StringVar(&flagBackend, "backend", "", "runner backend (local, docker)")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, s *config.Server) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		s.Listen = flagListen
	}
	if flags.Changed("model-dir") {
		s.ModelDir = flagServeModels
	}
	if flags.Changed("runner") {
		s.Runner = flagRunner
	}
	if flags.Changed("timeout") {
		s.RunTimeout = flagTimeout
	}
	if flags.Changed("backend") {
		s.Backend = flagBackend
	}
	if flags.Changed("metrics-addr") {
		s.MetricsAddr = flagMetricsAddr
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Server)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	runner, closeRunner, err := newBenchRunner(cfg.Server, log)
	if err != nil {
		return err
	}
	defer closeRunner()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServer(reg)
	if cfg.Server.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.Server.MetricsAddr, reg, log)
		defer shutdown()
	}

	srv := server.New(server.Config{
		ModelDir:     cfg.Server.ModelDir,
		Runner:       cfg.Server.Runner,
		Timeout:      cfg.Server.RunTimeout,
		PollInterval: cfg.Server.PollInterval,
		IOTimeout:    cfg.Server.IOTimeout,
	}, runner, log, m)
	return srv.ListenAndServe(ctx, cfg.Server.Listen)
}

func newBenchRunner(s config.Server, log *zap.Logger) (bench.Runner, func(), error) {
	if s.Backend != config.BackendDocker {
		return bench.ExecRunner{}, func() {}, nil
	}
	opts := docker.Options{
		Image:       s.Docker.Image,
		CPULimit:    s.Docker.CPUs,
		MemoryLimit: s.Docker.MemoryMB << 20,
		Devices:     s.Docker.Devices,
		Network:     s.Docker.Network,
	}
	for _, spec := range s.Docker.Mounts {
		m, err := docker.ParseMount(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("server.docker.mounts: %w", err)
		}
		opts.ExtraMounts = append(opts.ExtraMounts, m)
	}
	r, err := docker.New(opts, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using docker backend", zap.String("image", opts.Image))
	return r, func() { r.Close() }, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}
}
