package cmd

import (
	"fmt"

	"github.com/signalnine/npubench/internal/client"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List model bundles and whether they are complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, &cfg.Client)
			if cfg.Client.ModelDir == "" {
				return fmt.Errorf("--model-dir is required")
			}
			dirs, missing, err := client.Discover(cfg.Client.ModelDir, cfg.Client.Models)
			if err != nil {
				return err
			}
			fmt.Println("Models:")
			for _, dir := range dirs {
				b, err := client.LoadBundle(dir, cfg.Client.UseGolden)
				if err != nil {
					fmt.Printf("  - %s: %v\n", dir, err)
					continue
				}
				fmt.Printf("  - %s (%d files)\n", b.Name, b.FileCount())
			}
			for _, name := range missing {
				fmt.Printf("  - %s: not found\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagModelDir, "model-dir", "", "directory with one sub-directory per model")
	cmd.Flags().StringSliceVarP(&flagModels, "models", "m", nil, "only list these models")
	cmd.Flags().BoolVar(&flagUseGolden, "use-golden", false, "require golden data")
	return cmd
}
