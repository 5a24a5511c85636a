package bench

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/signalnine/npubench/internal/reportfmt"
)

// GraphAverageTimeKey is the per-core timing line the calibrator looks for.
const GraphAverageTimeKey = "Graph average time"

// Calibration describes one calibration attempt. When OK is false Args is the
// original vector and Reason says why.
type Calibration struct {
	Args      []string
	TargetMS  int
	Probe     *Execution
	Times     []float64
	MaxTimeMS float64
	Repeat    int
	Clamped   bool
	OK        bool
	Reason    string
}

// Calibrator sizes the repeat count of a run so it lasts about TargetMS of
// model time, using one single-iteration probe run.
type Calibrator struct {
	Runner     Runner
	Executable string
	Dir        string
	Timeout    time.Duration
}

// Calibrate probes with -r 1, takes the slowest reported graph average time m
// and sets -r to floor(target/m), at least 1. A probe without a usable timing
// leaves args untouched.
func (c *Calibrator) Calibrate(ctx context.Context, args []string, targetMS int) *Calibration {
	cal := &Calibration{Args: args, TargetMS: targetMS}

	probe := c.Runner.Run(ctx, Invocation{
		Executable: c.Executable,
		Args:       WithRepeat(args, 1),
		Dir:        c.Dir,
		Timeout:    c.Timeout,
	})
	cal.Probe = probe
	cal.Times = reportfmt.Numbers(probe.Report(), GraphAverageTimeKey)
	if len(cal.Times) == 0 {
		cal.Reason = "no graph average time in probe output"
		return cal
	}
	cal.MaxTimeMS = slices.Max(cal.Times)
	if cal.MaxTimeMS <= 0 {
		cal.Reason = "graph average time is zero"
		return cal
	}

	cal.Repeat, cal.Clamped = RepeatFor(targetMS, cal.MaxTimeMS)
	cal.Args = WithRepeat(args, cal.Repeat)
	cal.OK = true
	return cal
}

// RepeatFor returns floor(targetMS/perIterMS), clamped to 1.
func RepeatFor(targetMS int, perIterMS float64) (n int, clamped bool) {
	n = int(math.Floor(float64(targetMS) / perIterMS))
	if n < 1 {
		return 1, true
	}
	return n, false
}
