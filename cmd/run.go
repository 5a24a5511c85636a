package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalnine/npubench/internal/client"
	"github.com/signalnine/npubench/internal/config"
	"github.com/signalnine/npubench/internal/metrics"
	"github.com/signalnine/npubench/internal/report"
	"github.com/signalnine/npubench/internal/result"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagServer        string
	flagModelDir      string
	flagModels        []string
	flagExecutionMS   int
	flagRepeat        int
	flagCores         string
	flagPeak          float64
	flagUseGolden     bool
	flagExtraArgs     string
	flagResultsDir    string
	flagPace          time.Duration
	flagWaitForServer time.Duration
	flagPushgateway   string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every model bundle against a board server",
		RunE:  runBatch,
	}
	f := cmd.Flags()
	f.StringVar(&flagServer, "server", "", "board server host:port")
	f.StringVar(&flagModelDir, "model-dir", "", "directory with one sub-directory per model")
	f.StringSliceVarP(&flagModels, "models", "m", nil, "only run these models (comma separated)")
	f.IntVarP(&flagExecutionMS, "execution-times", "e", 0, "calibrate each run to this many ms (-1 disables)")
	f.IntVarP(&flagRepeat, "repeat", "r", 0, "runner repeat count")
	f.StringVarP(&flagCores, "cores", "n", "", "NPU core list, e.g. 0,1,2,3")
	f.Float64Var(&flagPeak, "peak-performance", 0, "peak performance passed to the runner")
	f.BoolVar(&flagUseGolden, "use-golden", false, "send golden data and compare results")
	f.StringVar(&flagExtraArgs, "extra-args", "", "additional runner arguments, shell quoted")
	f.StringVar(&flagResultsDir, "results-dir", "", "where run directories are created")
	f.DurationVar(&flagPace, "pace", 0, "pause between models")
	f.DurationVar(&flagWaitForServer, "wait", 0, "wait up to this long for the server to accept connections")
	f.StringVar(&flagPushgateway, "pushgateway", "", "push batch totals to this Prometheus pushgateway")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, c *config.Client) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		c.Server = flagServer
	}
	if flags.Changed("model-dir") {
		c.ModelDir = flagModelDir
	}
	if flags.Changed("models") {
		c.Models = flagModels
	}
	if flags.Changed("execution-times") {
		c.ExecutionTimeMS = flagExecutionMS
	}
	if flags.Changed("repeat") {
		c.RepeatCount = flagRepeat
	}
	if flags.Changed("cores") {
		c.NPUCores = flagCores
	}
	if flags.Changed("peak-performance") {
		c.PeakPerformance = flagPeak
	}
	if flags.Changed("use-golden") {
		c.UseGolden = flagUseGolden
	}
	if flags.Changed("extra-args") {
		c.ExtraArgs = flagExtraArgs
	}
	if flags.Changed("results-dir") {
		c.ResultsDir = flagResultsDir
	}
	if flags.Changed("pace") {
		c.Pace = flagPace
	}
	if flags.Changed("wait") {
		c.WaitForServer = flagWaitForServer
	}
	if flags.Changed("pushgateway") {
		c.Pushgateway = flagPushgateway
	}
	c.Models = cleanModelList(c.Models)
}

// cleanModelList trims names and drops empty entries.
func cleanModelList(models []string) []string {
	var out []string
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func batchConfig(c *config.Client) (client.BatchConfig, error) {
	extra, err := c.SplitExtraArgs()
	if err != nil {
		return client.BatchConfig{}, err
	}
	return client.BatchConfig{
		ModelDir:        c.ModelDir,
		Models:          c.Models,
		ResultsDir:      c.ResultsDir,
		UseGolden:       c.UseGolden,
		ExecutionTimeMS: c.ExecutionTimeMS,
		RunnerArgs:      client.RunnerArgs(c.RepeatCount, c.NPUCores, c.PeakPerformance, extra),
		Pace:            c.Pace,
	}, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg.Client)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := cfg.Client
	if c.Server == "" {
		return fmt.Errorf("--server is required")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("--model-dir is required")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	bc, err := batchConfig(&c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.WaitForServer > 0 {
		log.Info("waiting for server", zap.String("server", c.Server), zap.Duration("timeout", c.WaitForServer))
		if err := client.WaitForServer(ctx, c.Server, c.WaitForServer, 0); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	b := &client.Batch{
		Client:  &client.Client{Addr: c.Server, DialTimeout: c.DialTimeout, IOTimeout: c.IOTimeout},
		Config:  bc,
		Log:     log,
		Metrics: metrics.NewBatch(reg),
	}
	sum, err := b.Run(ctx)
	if err != nil {
		return err
	}

	if c.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, c.Pushgateway, "npubench", reg); err != nil {
			log.Warn("pushing batch metrics", zap.Error(err))
		}
	}

	passed, failed := result.Counts(sum.Outcomes)
	fmt.Printf("Run directory: %s\n", sum.RunDir)
	fmt.Printf("Models: %d, passed: %d, failed: %d\n", len(sum.Outcomes), passed, failed)
	for _, p := range sum.Exports {
		fmt.Printf("Exported: %s\n", p)
	}
	fmt.Println("\n--- Results ---")
	return report.Write(sum.Table, report.FormatTable, os.Stdout)
}
