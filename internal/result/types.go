package result

import "time"

// ModelOutcome is the client-side record of one bundle's session.
type ModelOutcome struct {
	Index  int       `json:"index"`
	Name   string    `json:"model_name"`
	Passed bool      `json:"passed"`
	Time   time.Time `json:"time"`
	// Report is the full response text; Output is the part kept in the
	// aggregate report.
	Report   string        `json:"-"`
	Output   string        `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// RunMeta describes a finished batch and is stored as run.json in the run dir.
type RunMeta struct {
	Stamp         string         `json:"stamp"`
	Server        string         `json:"server"`
	ModelDir      string         `json:"model_dir"`
	UseGolden     bool           `json:"use_golden"`
	ExecutionMS   int            `json:"execution_times"`
	RunnerArgs    []string       `json:"runner_args"`
	Started       time.Time      `json:"started"`
	Finished      time.Time      `json:"finished"`
	Interrupted   bool           `json:"interrupted"`
	AggregateFile string         `json:"aggregate_file"`
	SummaryFile   string         `json:"summary_file"`
	Models        []ModelOutcome `json:"models"`
}

// Counts returns the number of passed and failed outcomes.
func Counts(outcomes []ModelOutcome) (passed, failed int) {
	for _, o := range outcomes {
		if o.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}
