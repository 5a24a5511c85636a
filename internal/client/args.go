package client

import (
	"strconv"

	"github.com/signalnine/npubench/internal/bench"
)

// RunnerArgs builds the runner flags sent with every model: repeat count, core
// list and peak performance, then extra verbatim.
func RunnerArgs(repeat int, cores string, peak float64, extra []string) []string {
	args := []string{
		bench.FlagRepeat, strconv.Itoa(repeat),
		bench.FlagCores, cores,
		bench.FlagPeakPerf, formatPeak(peak),
	}
	return append(args, extra...)
}

// formatPeak keeps one decimal on whole numbers, so 4 is sent as "4.0".
func formatPeak(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f == float64(int64(f)) {
		s = strconv.FormatFloat(f, 'f', 1, 64)
	}
	return s
}
