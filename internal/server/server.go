// Package server implements the board side of the benchmark protocol: it
// accepts one connection at a time, receives a model bundle, runs the benchmark
// against it and sends the report back.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/logging"
	"github.com/signalnine/npubench/internal/metrics"
	"go.uber.org/zap"
)

// DefaultPollInterval is how long Accept blocks before the stop context is
// checked again.
const DefaultPollInterval = time.Second

// DefaultIOTimeout bounds each read or write phase of a session.
const DefaultIOTimeout = 300 * time.Second

type Config struct {
	// ModelDir holds one directory per in-flight bundle.
	ModelDir string
	// Runner is the benchmark executable.
	Runner       string
	Timeout      time.Duration
	PollInterval time.Duration
	// IOTimeout is the deadline for receiving the command and bundle, and
	// again for sending the response. It is lifted while the runner works.
	IOTimeout time.Duration
}

type Server struct {
	cfg     Config
	runner  bench.Runner
	log     *zap.Logger
	metrics *metrics.Server
}

// New returns a server that runs benchmarks through runner. log and m may be nil.
func New(cfg Config, runner bench.Runner, log *zap.Logger, m *metrics.Server) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = bench.DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if runner == nil {
		runner = bench.ExecRunner{}
	}
	return &Server{cfg: cfg, runner: runner, log: logging.OrNop(log), metrics: m}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()
	return s.Serve(ctx, ln)
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Serve handles connections from ln one at a time until ctx is cancelled. A
// session in progress when ctx ends runs to completion.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := os.MkdirAll(s.cfg.ModelDir, 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	s.log.Info("server started",
		zap.Stringer("addr", ln.Addr()),
		zap.String("model_dir", s.cfg.ModelDir),
		zap.String("runner", s.cfg.Runner),
		zap.Duration("timeout", s.cfg.Timeout))

	dl, polling := ln.(deadliner)
	if !polling {
		stop := context.AfterFunc(ctx, func() { ln.Close() })
		defer stop()
	}

	for {
		if ctx.Err() != nil {
			s.log.Info("server stopped")
			return nil
		}
		if polling {
			if err := dl.SetDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
				return fmt.Errorf("setting accept deadline: %w", err)
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("server stopped")
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.handle(context.WithoutCancel(ctx), conn)
	}
}
