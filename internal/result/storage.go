package result

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StampLayout names run directories and the files inside them.
const StampLayout = "20060102_150405"

const (
	timeLayout = "2006-01-02 15:04:05"
	ruleWidth  = 80
	metaFile   = "run.json"
	PassMarker = "[PASS]"
	FailMarker = "[FAIL]"
)

var (
	hashRule  = strings.Repeat("#", ruleWidth)
	equalRule = strings.Repeat("=", ruleWidth)
	dashRule  = strings.Repeat("-", ruleWidth)
)

// Stamp formats t for file and directory names.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

// CreateRunDir creates <baseDir>/runs/<stamp> and points <baseDir>/latest at it.
func CreateRunDir(baseDir, stamp string) (string, error) {
	runDir, err := filepath.Abs(filepath.Join(baseDir, "runs", stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func ModelFile(runDir, model, stamp string) string {
	return filepath.Join(runDir, fmt.Sprintf("%s_%s.txt", model, stamp))
}

func AggregateFile(runDir, stamp string) string {
	return filepath.Join(runDir, fmt.Sprintf("all_results_%s.txt", stamp))
}

func SummaryFile(runDir, stamp string) string {
	return filepath.Join(runDir, fmt.Sprintf("summary_%s.txt", stamp))
}

// ExportPrefix is the path prefix of the table exports; writers add the
// extension.
func ExportPrefix(runDir, stamp string) string {
	return filepath.Join(runDir, "results_"+stamp)
}

// WriteModelFile stores the full response for one model.
func WriteModelFile(path string, o ModelOutcome) error {
	verdict := "FAIL"
	if o.Passed {
		verdict = "PASS"
	}
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "Model name: %s\n", o.Name)
	fmt.Fprintf(&b, "Test time: %s\n", o.Time.Format(timeLayout))
	fmt.Fprintf(&b, "Test result: %s\n", verdict)
	fmt.Fprintf(&b, "\n%s\nExecution output:\n%s\n", rule, rule)
	b.WriteString(o.Report)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing model result: %w", err)
	}
	return nil
}

// BatchReport is the aggregate results file. Every Append reaches the disk
// before it returns, so an interrupted batch keeps the models it finished.
type BatchReport struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	total int
}

// CreateBatchReport truncates path and writes the header for a batch of total
// models.
func CreateBatchReport(path string, total int, start time.Time) (*BatchReport, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating aggregate report: %w", err)
	}
	r := &BatchReport{path: path, f: f, w: bufio.NewWriter(f), total: total}
	fmt.Fprintf(r.w, "%s\nAll Models Detailed Test Results\n%s\n", equalRule, equalRule)
	fmt.Fprintf(r.w, "Test start time: %s\n", start.Format(timeLayout))
	fmt.Fprintf(r.w, "Total models: %d\n", total)
	fmt.Fprintf(r.w, "%s\n\n\n", equalRule)
	if err := r.flush(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *BatchReport) Path() string { return r.path }

// Append writes the section for one model.
func (r *BatchReport) Append(o ModelOutcome) error {
	marker := FailMarker
	if o.Passed {
		marker = PassMarker
	}
	fmt.Fprintf(r.w, "\n\n%s\n# Model %d/%d: %s\n%s\n\n", hashRule, o.Index, r.total, o.Name, hashRule)
	fmt.Fprintf(r.w, "Model name: %s\n", o.Name)
	fmt.Fprintf(r.w, "Test time: %s\n", o.Time.Format(timeLayout))
	fmt.Fprintf(r.w, "Test result: %s\n", marker)
	fmt.Fprintf(r.w, "\n%s\nExecution output:\n%s\n", dashRule, dashRule)
	r.w.WriteString(o.Output)
	fmt.Fprintf(r.w, "\n%s\n", dashRule)
	return r.flush()
}

// Close writes the trailing summary and closes the file.
func (r *BatchReport) Close(outcomes []ModelOutcome, end time.Time) error {
	passed, failed := Counts(outcomes)
	fmt.Fprintf(r.w, "\n\n\n%s\nTest Summary\n%s\n", equalRule, equalRule)
	fmt.Fprintf(r.w, "Test end time: %s\n", end.Format(timeLayout))
	fmt.Fprintf(r.w, "Total models: %d\n", len(outcomes))
	fmt.Fprintf(r.w, "Passed: %d\nFailed: %d\n", passed, failed)
	fmt.Fprintf(r.w, "%s\n", equalRule)
	err := r.flush()
	if cerr := r.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing aggregate report: %w", cerr)
	}
	return err
}

func (r *BatchReport) flush() error {
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("writing aggregate report: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("syncing aggregate report: %w", err)
	}
	return nil
}

// WriteSummary writes the short pass/fail listing.
func WriteSummary(path string, outcomes []ModelOutcome, at time.Time) error {
	passed, failed := Counts(outcomes)
	var b strings.Builder
	b.WriteString("Model Test Summary Report\n")
	fmt.Fprintf(&b, "Test time: %s\n", at.Format(timeLayout))
	fmt.Fprintf(&b, "Total models: %d\n", len(outcomes))
	fmt.Fprintf(&b, "Passed: %d\nFailed: %d\n", passed, failed)
	fmt.Fprintf(&b, "\n%s\n\n", equalRule)
	for i, o := range outcomes {
		marker := FailMarker
		if o.Passed {
			marker = PassMarker
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, o.Name, marker)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, metaFile), data, 0o644)
}

// ReadRunMeta reads run.json from runDir.
func ReadRunMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}
