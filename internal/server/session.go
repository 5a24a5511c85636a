package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/metrics"
	"github.com/signalnine/npubench/internal/wire"
	"go.uber.org/zap"
)

// Texts sent back for requests rejected before any file is stored.
const (
	msgUnsupportedCommand = "Error: Unsupported command"
	msgMissingModelName   = "Error: Missing model name"
	msgInvalidModelName   = "Error: Invalid model name"
	msgReceiveFailed      = "Error: Failed to receive file"
	serverErrorPrefix     = "Server error: "
)

type state int

const (
	awaitCommand state = iota
	awaitFileCount
	receivingFiles
	validating
	calibrating
	executing
	responding
	cleaningUp
	closed
)

func (st state) String() string {
	switch st {
	case awaitCommand:
		return "await_command"
	case awaitFileCount:
		return "await_file_count"
	case receivingFiles:
		return "receiving_files"
	case validating:
		return "validating"
	case calibrating:
		return "calibrating"
	case executing:
		return "executing"
	case responding:
		return "responding"
	case cleaningUp:
		return "cleaning_up"
	case closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(st))
}

type session struct {
	srv   *Server
	conn  net.Conn
	log   *zap.Logger
	state state
	// replied is set once a response frame went out; at most one is sent.
	replied bool
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	id := uuid.New()
	sess := &session{
		srv:  s,
		conn: conn,
		log:  s.log.With(zap.String("session", id.String()), zap.Stringer("remote", conn.RemoteAddr())),
	}
	start := time.Now()
	sess.log.Info("connection accepted")

	outcome := metrics.OutcomeError
	defer func() {
		if r := recover(); r != nil {
			sess.log.Error("session panicked", zap.Any("panic", r), zap.Stringer("state", sess.state))
			sess.reply(fmt.Sprintf("%s%v", serverErrorPrefix, r))
			outcome = metrics.OutcomeError
		}
		sess.enter(closed)
		if err := conn.Close(); err != nil {
			sess.log.Debug("closing connection", zap.Error(err))
		}
		s.metrics.SessionDone(outcome)
		sess.log.Info("connection closed", zap.String("outcome", outcome), zap.Duration("elapsed", time.Since(start)))
	}()

	outcome = sess.run(ctx)
}

func (sess *session) enter(st state) {
	sess.state = st
	sess.log.Debug("session state", zap.Stringer("state", st))
}

// reply sends msg as the single response frame. Send failures are logged only.
func (sess *session) reply(msg string) {
	if sess.replied {
		return
	}
	sess.replied = true
	sess.arm()
	if err := wire.WriteString(sess.conn, msg); err != nil {
		sess.log.Warn("sending response", zap.Error(err))
	}
}

// arm starts a fresh I/O deadline so a stalled peer cannot hold the server.
func (sess *session) arm() {
	if err := sess.conn.SetDeadline(time.Now().Add(sess.srv.cfg.IOTimeout)); err != nil {
		sess.log.Debug("setting deadline", zap.Error(err))
	}
}

// disarm clears the deadline while the runner, which has its own timeout, works.
func (sess *session) disarm() {
	if err := sess.conn.SetDeadline(time.Time{}); err != nil {
		sess.log.Debug("clearing deadline", zap.Error(err))
	}
}

func (sess *session) fail(err error) string {
	sess.log.Error("session failed", zap.Error(err), zap.Stringer("state", sess.state))
	sess.reply(serverErrorPrefix + err.Error())
	return metrics.OutcomeError
}

func (sess *session) run(ctx context.Context) string {
	srv := sess.srv

	sess.enter(awaitCommand)
	sess.arm()
	raw, err := wire.ReadBytes(sess.conn)
	if err != nil {
		sess.log.Warn("no command received", zap.Error(err))
		return metrics.OutcomeTransfer
	}
	req, err := wire.DecodeRequest(raw)
	if err != nil {
		return sess.fail(err)
	}
	if err := req.Validate(); err != nil {
		sess.log.Warn("request rejected", zap.Error(err))
		sess.reply(rejection(err))
		return metrics.OutcomeRejected
	}
	log := sess.log.With(zap.String("model", req.ModelName))
	sess.log = log
	log.Info("command received",
		zap.Bool("use_golden", req.UseGolden),
		zap.Int("execution_times", req.ExecutionTimes),
		zap.Strings("runner_args", req.RunnerArgs))

	sess.enter(awaitFileCount)
	sess.arm()
	count, err := wire.ReadUint32(sess.conn)
	if err != nil {
		log.Warn("no file count received", zap.Error(err))
		sess.reply(msgReceiveFailed)
		return metrics.OutcomeTransfer
	}

	bundle := filepath.Join(srv.cfg.ModelDir, req.ModelName)
	defer sess.cleanup(bundle)
	if err := os.RemoveAll(bundle); err != nil {
		return sess.fail(fmt.Errorf("clearing %s: %w", bundle, err))
	}
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		return sess.fail(fmt.Errorf("creating %s: %w", bundle, err))
	}

	sess.enter(receivingFiles)
	for i := range count {
		sess.arm()
		name, size, err := wire.ReceiveFile(sess.conn, bundle)
		if err != nil {
			log.Warn("receiving file", zap.Uint32("index", i+1), zap.Uint32("count", count), zap.Error(err))
			sess.reply(msgReceiveFailed)
			return metrics.OutcomeTransfer
		}
		srv.metrics.Received(size)
		log.Debug("file received", zap.String("name", name), zap.Uint64("bytes", size))
	}
	log.Info("bundle received", zap.Uint32("files", count))

	sess.enter(validating)
	sess.disarm()
	args, err := bench.BuildArgs(req, bundle, req.ModelName)
	if err != nil {
		var verr *bench.ValidationError
		if errors.As(err, &verr) {
			log.Warn("bundle invalid", zap.String("reason", verr.Msg))
			sess.reply(verr.Msg)
			return metrics.OutcomeInvalid
		}
		return sess.fail(err)
	}

	if req.Calibrated() {
		sess.enter(calibrating)
		args = sess.calibrate(ctx, bundle, args, req.ExecutionTimes)
	}

	sess.enter(executing)
	inv := bench.Invocation{Executable: srv.cfg.Runner, Args: args, Dir: bundle, Timeout: srv.cfg.Timeout}
	log.Info("running benchmark", zap.String("cmd", inv.Command()))
	exec := srv.runner.Run(ctx, inv)
	srv.observe("run", exec)
	fields := []zap.Field{zap.Duration("duration", exec.Duration), zap.Bool("timed_out", exec.TimedOut)}
	if exec.ReturnCode != nil {
		fields = append(fields, zap.Int("return_code", *exec.ReturnCode))
	}
	if exec.Err != nil {
		fields = append(fields, zap.Error(exec.Err))
	}
	log.Info("benchmark finished", fields...)

	sess.enter(responding)
	sess.reply(exec.Report())
	return metrics.OutcomeOK
}

func (sess *session) calibrate(ctx context.Context, bundle string, args []string, targetMS int) []string {
	srv := sess.srv
	c := &bench.Calibrator{Runner: srv.runner, Executable: srv.cfg.Runner, Dir: bundle, Timeout: srv.cfg.Timeout}
	cal := c.Calibrate(ctx, args, targetMS)
	srv.observe("probe", cal.Probe)
	srv.metrics.Calibrated(cal.OK, cal.Repeat)
	if !cal.OK {
		sess.log.Warn("calibration skipped, keeping repeat count", zap.String("reason", cal.Reason), zap.Int("target_ms", targetMS))
		return cal.Args
	}
	sess.log.Info("calibrated repeat count",
		zap.Int("target_ms", targetMS),
		zap.Float64s("graph_average_ms", cal.Times),
		zap.Float64("max_ms", cal.MaxTimeMS),
		zap.Int("repeat", cal.Repeat),
		zap.Bool("clamped", cal.Clamped))
	return cal.Args
}

func (sess *session) cleanup(bundle string) {
	sess.enter(cleaningUp)
	if err := os.RemoveAll(bundle); err != nil {
		sess.log.Error("removing bundle", zap.String("dir", bundle), zap.Error(err))
		return
	}
	sess.log.Debug("bundle removed", zap.String("dir", bundle))
}

func (s *Server) observe(phase string, e *bench.Execution) {
	if e == nil {
		return
	}
	s.metrics.RunnerDone(phase, e.Duration.Seconds(), e.Succeeded(), e.TimedOut, e.ReturnCode != nil)
}

func rejection(err error) string {
	switch {
	case errors.Is(err, wire.ErrUnsupportedCommand):
		return msgUnsupportedCommand
	case errors.Is(err, wire.ErrMissingModelName):
		return msgMissingModelName
	case errors.Is(err, wire.ErrInvalidModelName):
		return msgInvalidModelName
	}
	return serverErrorPrefix + err.Error()
}
