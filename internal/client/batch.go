// Package client is the driver-host side: it sends model bundles to a board
// server one at a time and records the results of a batch.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/npubench/internal/logging"
	"github.com/signalnine/npubench/internal/metrics"
	"github.com/signalnine/npubench/internal/report"
	"github.com/signalnine/npubench/internal/result"
	"github.com/signalnine/npubench/internal/wire"
	"go.uber.org/zap"
)

// DefaultPace is the pause between two models.
const DefaultPace = 3 * time.Second

const msgInterrupted = "Error: Interrupted"

var ErrNoModels = errors.New("no model folders found")

type BatchConfig struct {
	ModelDir        string
	Models          []string
	ResultsDir      string
	UseGolden       bool
	ExecutionTimeMS int
	RunnerArgs      []string
	Pace            time.Duration
}

// Batch runs every bundle under ModelDir through Client, in name order.
type Batch struct {
	Client  *Client
	Config  BatchConfig
	Log     *zap.Logger
	Metrics *metrics.Batch
}

// Summary is what a batch produced.
type Summary struct {
	RunDir   string
	Meta     *result.RunMeta
	Outcomes []result.ModelOutcome
	Table    report.Table
	Exports  []string
}

// Run executes the batch. Cancelling ctx stops it before the next model; the
// summary and exports are still written for the models that finished.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	log := logging.OrNop(b.Log)
	cfg := b.Config

	dirs, missing, err := Discover(cfg.ModelDir, cfg.Models)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		log.Warn("requested models not found", zap.Strings("models", missing))
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoModels, cfg.ModelDir)
	}
	log.Info("models found", zap.Int("count", len(dirs)), zap.String("model_dir", cfg.ModelDir))

	start := time.Now()
	stamp := result.Stamp(start)
	runDir, err := result.CreateRunDir(cfg.ResultsDir, stamp)
	if err != nil {
		return nil, err
	}
	agg, err := result.CreateBatchReport(result.AggregateFile(runDir, stamp), len(dirs), start)
	if err != nil {
		return nil, err
	}

	meta := &result.RunMeta{
		Stamp:         stamp,
		Server:        b.Client.Addr,
		ModelDir:      cfg.ModelDir,
		UseGolden:     cfg.UseGolden,
		ExecutionMS:   cfg.ExecutionTimeMS,
		RunnerArgs:    cfg.RunnerArgs,
		Started:       start,
		AggregateFile: filepath.Base(agg.Path()),
		SummaryFile:   filepath.Base(result.SummaryFile(runDir, stamp)),
	}

	var outcomes []result.ModelOutcome
	for i, dir := range dirs {
		if ctx.Err() != nil {
			meta.Interrupted = true
			break
		}
		log.Info("processing model", zap.Int("index", i+1), zap.Int("total", len(dirs)), zap.String("model", filepath.Base(dir)))
		o := b.runOne(ctx, i+1, dir)
		outcomes = append(outcomes, o)

		if err := result.WriteModelFile(result.ModelFile(runDir, o.Name, stamp), o); err != nil {
			log.Error("saving model result", zap.String("model", o.Name), zap.Error(err))
		}
		if err := agg.Append(o); err != nil {
			agg.Close(outcomes, time.Now())
			return nil, err
		}

		if i < len(dirs)-1 && !b.pace(ctx) {
			meta.Interrupted = true
			break
		}
	}
	if meta.Interrupted {
		log.Warn("batch interrupted", zap.Int("completed", len(outcomes)), zap.Int("total", len(dirs)))
	}

	end := time.Now()
	if err := agg.Close(outcomes, end); err != nil {
		return nil, err
	}
	summaryPath := result.SummaryFile(runDir, stamp)
	if err := result.WriteSummary(summaryPath, outcomes, end); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(agg.Path())
	if err != nil {
		return nil, fmt.Errorf("reading aggregate report: %w", err)
	}
	table := report.BuildTable(report.Parse(string(data)))
	exports, err := report.Export(table, result.ExportPrefix(runDir, stamp))
	if err != nil {
		return nil, err
	}

	meta.Finished = end
	meta.Models = outcomes
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		return nil, err
	}

	passed, failed := result.Counts(outcomes)
	b.Metrics.Record(len(outcomes), passed, failed)
	log.Info("batch finished",
		zap.String("run_dir", runDir),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("table_rows", len(table.Rows)),
		zap.Duration("elapsed", end.Sub(start)))

	return &Summary{RunDir: runDir, Meta: meta, Outcomes: outcomes, Table: table, Exports: exports}, nil
}

func (b *Batch) runOne(ctx context.Context, index int, dir string) result.ModelOutcome {
	log := logging.OrNop(b.Log).With(zap.String("model", filepath.Base(dir)))
	cfg := b.Config
	o := result.ModelOutcome{Index: index, Name: filepath.Base(dir), Time: time.Now()}

	req := wire.NewRunRequest(o.Name, cfg.RunnerArgs)
	req.UseGolden = cfg.UseGolden
	req.ExecutionTimes = cfg.ExecutionTimeMS

	bundle, err := LoadBundle(dir, cfg.UseGolden)
	if err != nil {
		o.Report = b.Client.ErrorText(err)
	} else {
		log.Debug("sending bundle", zap.Int("files", bundle.FileCount()), zap.String("server", b.Client.Addr))
		resp, err := b.Client.RunModel(ctx, req, bundle)
		switch {
		case err != nil && ctx.Err() != nil:
			o.Report = msgInterrupted
		case err != nil:
			log.Warn("session failed", zap.Error(err))
			o.Report = b.Client.ErrorText(err)
		case resp == "":
			o.Report = msgNoResult
		default:
			o.Report = resp
			o.Passed = CheckResult(resp)
		}
	}
	o.Output = FilterResult(o.Report)
	o.Duration = time.Since(o.Time)

	if o.Passed {
		log.Info("model passed", zap.Duration("elapsed", o.Duration))
	} else {
		line, _, _ := strings.Cut(o.Report, "\n")
		log.Warn("model failed", zap.String("result", line))
	}
	return o
}

// pace waits between models and reports false if ctx ended first.
func (b *Batch) pace(ctx context.Context) bool {
	d := b.Config.Pace
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
