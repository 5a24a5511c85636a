package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/signalnine/npubench/internal/report"
	"github.com/signalnine/npubench/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagOut    string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [aggregate-file | run-dir]",
		Short: "Build the metrics table from an aggregate results file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			target := filepath.Join(cfg.Client.ResultsDir, "latest")
			if len(args) > 0 {
				target = args[0]
			}
			path, err := aggregatePath(target)
			if err != nil {
				return err
			}
			table, err := report.Generate(path, flagFormat, os.Stdout)
			if err != nil {
				return err
			}
			if flagOut != "" {
				paths, err := report.Export(table, flagOut)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintf(os.Stderr, "Exported: %s\n", p)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", report.FormatTable, "output format (table, markdown, csv, json)")
	cmd.Flags().StringVar(&flagOut, "out", "", "also write PREFIX.md, PREFIX.csv and PREFIX.json")
	return cmd
}

// aggregatePath resolves target to an aggregate results file. A run directory
// is resolved through its run.json, or failing that its newest all_results
// file.
func aggregatePath(target string) (string, error) {
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", target, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return resolved, nil
	}
	if meta, err := result.ReadRunMeta(resolved); err == nil && meta.AggregateFile != "" {
		return filepath.Join(resolved, meta.AggregateFile), nil
	}
	matches, err := filepath.Glob(filepath.Join(resolved, "all_results_*.txt"))
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", resolved, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no aggregate results file in %s", resolved)
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}
