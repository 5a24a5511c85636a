package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single runner invocation.
const DefaultTimeout = 180 * time.Second

// Markers written into synthesized report text. Clients key pass/fail off them.
const (
	StdoutHeader     = "=== STDOUT ==="
	StderrHeader     = "=== STDERR ==="
	ReturnCodePrefix = "=== Return code:"
	SuccessMarker    = "Execution successful!"
	FailureMarker    = "Execution failed!"
)

// Invocation is one run of the benchmark executable.
type Invocation struct {
	Executable string
	Args       []string
	Dir        string
	Timeout    time.Duration
}

// Command returns the full argv, for logging.
func (inv Invocation) Command() string {
	return strings.Join(append([]string{inv.Executable}, inv.Args...), " ")
}

// Execution is what came back from an invocation. ReturnCode is nil when the
// process never produced an exit status.
type Execution struct {
	Stdout     string
	Stderr     string
	ReturnCode *int
	TimedOut   bool
	NotFound   bool
	Err        error
	Timeout    time.Duration
	Executable string
	Duration   time.Duration
}

// Report renders the execution as the text sent back over the wire.
func (e *Execution) Report() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("Error: Command execution timeout (%s)", e.Timeout)
	case e.NotFound:
		return fmt.Sprintf("Error: runner not found: %s", e.Executable)
	case e.ReturnCode == nil:
		err := e.Err
		if err == nil {
			err = errors.New("no exit status")
		}
		return fmt.Sprintf("Error: Exception occurred during command execution: %v", err)
	}

	var b strings.Builder
	if e.Stdout != "" {
		b.WriteString(StdoutHeader + "\n")
		b.WriteString(e.Stdout)
	}
	if e.Stderr != "" {
		b.WriteString("\n" + StderrHeader + "\n")
		b.WriteString(e.Stderr)
	}
	fmt.Fprintf(&b, "\n\n%s %d ===\n", ReturnCodePrefix, *e.ReturnCode)
	if *e.ReturnCode == 0 {
		b.WriteString(SuccessMarker + "\n")
	} else {
		b.WriteString(FailureMarker + "\n")
	}
	return b.String()
}

// Succeeded reports a zero exit status.
func (e *Execution) Succeeded() bool {
	return e.ReturnCode != nil && *e.ReturnCode == 0
}

// Runner executes the benchmark. Implementations never return a nil Execution;
// launch problems are recorded on it instead.
type Runner interface {
	Run(ctx context.Context, inv Invocation) *Execution
}

// ExecRunner runs the benchmark as a local child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, inv Invocation) *Execution {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	res := &Execution{Executable: inv.Executable, Timeout: timeout}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		res.ReturnCode = &code
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		code := exitErr.ExitCode()
		res.ReturnCode = &code
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		res.NotFound = true
		res.Err = err
	default:
		res.Err = err
	}
	return res
}
