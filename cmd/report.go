package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/skillbench/internal/report"
	"github.com/signalnine/skillbench/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagTasks  bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			if err := report.Generate(resolved, flagFormat, os.Stdout, cfg.Pricing.File); err != nil {
				return err
			}
			if !flagTasks {
				return nil
			}
			dirs, err := result.FindSkillDirs(resolved)
			if err != nil {
				return err
			}
			for _, dir := range dirs {
				results, err := result.ReadTaskResults(dir)
				if err != nil {
					return err
				}
				fmt.Printf("\n%s\n", filepath.Base(dir))
				if err := report.Tasks(results, os.Stdout); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagTasks, "tasks", false, "also list per-task results")
	return cmd
}
