package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/skillbench/internal/pipeline"
	"github.com/signalnine/skillbench/internal/report"
	"github.com/signalnine/skillbench/internal/result"
	"github.com/signalnine/skillbench/internal/scoring"
	"github.com/spf13/cobra"
)

var (
	flagMetric        string
	flagTaskWeight    float64
	flagQualityWeight float64
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [run-dir]",
		Short: "Re-score stored results without calling any model",
		Long:  "Walk a run directory, recompute each skill's score from its task results and quality comparisons, and rewrite summary.json.",
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
			if flagMetric != "" {
				cfg.Scoring.TaskMetric = flagMetric
			}
			if cmd.Flags().Changed("task-weight") {
				cfg.Scoring.TaskWeight = flagTaskWeight
			}
			if cmd.Flags().Changed("quality-weight") {
				cfg.Scoring.QualityWeight = flagQualityWeight
			}
			if err := validateScoring(cfg.Scoring.TaskMetric, cfg.Scoring.TaskWeight, cfg.Scoring.QualityWeight); err != nil {
				return err
			}

			table, err := loadPricing(cfg)
			if err != nil {
				return err
			}
			dirs, err := result.FindSkillDirs(runDir)
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no skill results found in %s", runDir)
			}

			opts := pipeline.ScoringOpts(cfg, table)
			for _, dir := range dirs {
				if meta, err := result.ReadMeta(dir); err == nil && meta.Model != "" {
					opts.Model = meta.Model
				}
				o, err := pipeline.Rescore(dir, "", opts)
				if err != nil {
					return fmt.Errorf("scoring %s: %w", dir, err)
				}
				fmt.Println(report.Card(o.Score))
			}
			return report.Generate(runDir, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagMetric, "metric", "", "task metric override (criteria, tasks)")
	cmd.Flags().Float64Var(&flagTaskWeight, "task-weight", 0, "task weight override")
	cmd.Flags().Float64Var(&flagQualityWeight, "quality-weight", 0, "quality weight override")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

func validateScoring(metric string, taskWeight, qualityWeight float64) error {
	switch scoring.TaskMetric(metric) {
	case scoring.MetricCriteria, scoring.MetricTasks:
	default:
		return fmt.Errorf("unknown task metric %q", metric)
	}
	if taskWeight < 0 || qualityWeight < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	return nil
}
