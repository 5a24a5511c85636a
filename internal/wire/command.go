package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// CommandRunModel is the only command the board server accepts.
const CommandRunModel = "run_model"

// NoCalibration disables repeat-count calibration.
const NoCalibration = -1

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrMissingModelName   = errors.New("missing model name")
	ErrInvalidModelName   = errors.New("invalid model name")
)

// RunRequest is the command object sent ahead of a bundle.
type RunRequest struct {
	Command        string   `json:"command"`
	ModelName      string   `json:"model_name"`
	UseGolden      bool     `json:"use_golden"`
	ExecutionTimes int      `json:"execution_times"`
	RunnerArgs     []string `json:"runner_args"`
}

// NewRunRequest returns a run_model request for model with calibration off.
func NewRunRequest(model string, runnerArgs []string) RunRequest {
	return RunRequest{
		Command:        CommandRunModel,
		ModelName:      model,
		ExecutionTimes: NoCalibration,
		RunnerArgs:     runnerArgs,
	}
}

// Calibrated reports whether the request asks for a time-budgeted run.
func (r RunRequest) Calibrated() bool {
	return r.ExecutionTimes != NoCalibration
}

// Validate checks the command tag and the model name. The model name becomes a
// directory on the board, so it must be a single path element.
func (r RunRequest) Validate() error {
	if r.Command != CommandRunModel {
		return fmt.Errorf("%q: %w", r.Command, ErrUnsupportedCommand)
	}
	if r.ModelName == "" {
		return ErrMissingModelName
	}
	if strings.ContainsAny(r.ModelName, `/\`) || r.ModelName == "." || r.ModelName == ".." || !filepath.IsLocal(r.ModelName) {
		return fmt.Errorf("%q: %w", r.ModelName, ErrInvalidModelName)
	}
	return nil
}

func EncodeRequest(r RunRequest) ([]byte, error) {
	if r.RunnerArgs == nil {
		r.RunnerArgs = []string{}
	}
	return json.Marshal(r)
}

// DecodeRequest parses a command object. An absent execution_times means no
// calibration.
func DecodeRequest(data []byte) (RunRequest, error) {
	r := RunRequest{ExecutionTimes: NoCalibration}
	if err := json.Unmarshal(data, &r); err != nil {
		return RunRequest{}, fmt.Errorf("decoding command: %w", err)
	}
	return r, nil
}
