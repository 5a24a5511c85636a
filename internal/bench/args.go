package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/signalnine/npubench/internal/wire"
)

// Flags understood by the benchmark runner.
const (
	FlagModel        = "-m"
	FlagGolden       = "-g"
	FlagRepeat       = "-r"
	FlagCores        = "-n"
	FlagPeakPerf     = "--peak_performance"
	GoldenDir        = "golden"
	ModelBinSuffix   = ".bin"
	ModelParamSuffix = ".param"
)

// ValidationError carries the text reported back to the client when a bundle
// is incomplete.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// BuildArgs checks that bundleDir holds the model artifacts for name and
// returns the runner flag vector: -m, optionally -g, then req.RunnerArgs as
// given.
func BuildArgs(req wire.RunRequest, bundleDir, name string) ([]string, error) {
	base := filepath.Join(bundleDir, name)

	bin := base + ModelBinSuffix
	if !exists(bin) {
		return nil, &ValidationError{Msg: fmt.Sprintf("Error: Model file does not exist: %s", bin)}
	}
	param := base + ModelParamSuffix
	if !exists(param) {
		return nil, &ValidationError{Msg: fmt.Sprintf("Error: Parameter file does not exist: %s", param)}
	}

	args := []string{FlagModel, base}
	if req.UseGolden {
		golden := filepath.Join(bundleDir, GoldenDir)
		if info, err := os.Stat(golden); err != nil || !info.IsDir() {
			return nil, &ValidationError{Msg: fmt.Sprintf("Error: Golden directory does not exist: %s", golden)}
		}
		args = append(args, FlagGolden, golden)
	}
	return append(args, req.RunnerArgs...), nil
}

// WithRepeat returns a copy of args whose repeat count is n. The first -r
// value is replaced in place; a trailing bare -r gets its value appended; with
// no -r at all the flag is appended.
func WithRepeat(args []string, n int) []string {
	out := slices.Clone(args)
	v := strconv.Itoa(n)
	idx := slices.Index(out, FlagRepeat)
	switch {
	case idx < 0:
		return append(out, FlagRepeat, v)
	case idx+1 < len(out):
		out[idx+1] = v
		return out
	default:
		return append(out, v)
	}
}

// Repeat returns the repeat count in args, if one is set and numeric.
func Repeat(args []string) (int, bool) {
	idx := slices.Index(args, FlagRepeat)
	if idx < 0 || idx+1 >= len(args) {
		return 0, false
	}
	n, err := strconv.Atoi(args[idx+1])
	return n, err == nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
