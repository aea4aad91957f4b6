package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/config"
	"github.com/signalnine/skillbench/internal/gateway"
	"github.com/signalnine/skillbench/internal/pipeline"
	"github.com/signalnine/skillbench/internal/pricing"
	"github.com/signalnine/skillbench/internal/report"
	"github.com/signalnine/skillbench/internal/result"
	"github.com/signalnine/skillbench/internal/skill"
	"github.com/signalnine/skillbench/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagSkill       string
	flagTask        string
	flagDifficulty  string
	flagSkipQuality bool
	flagSkipSelect  bool
	flagParallel    int
	flagShowTasks   bool
	flagNoStore     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <suite>...",
		Short: "Evaluate skills against their benchmark suites",
		Long: "Run every task of each suite with the skill loaded, compare quality with and without it, " +
			"then score, store and report. A suite's skill is the SKILL.md beside the suite file unless --skill is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: runEvaluation,
	}
	cmd.Flags().StringVar(&flagSkill, "skill", "", "SKILL.md file or skill directory (single suite only)")
	cmd.Flags().StringVar(&flagTask, "task", "", "comma-separated task ids to run")
	cmd.Flags().StringVar(&flagDifficulty, "difficulty", "", "filter tasks by difficulty")
	cmd.Flags().BoolVar(&flagSkipQuality, "skip-quality", false, "skip quality comparisons")
	cmd.Flags().BoolVar(&flagSkipSelect, "skip-selectivity", false, "skip selectivity tests")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent skill evaluations")
	cmd.Flags().BoolVar(&flagShowTasks, "show-tasks", false, "print per-task results")
	cmd.Flags().BoolVar(&flagNoStore, "no-store", false, "do not record scores in the leaderboard")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	if flagSkill != "" && len(args) > 1 {
		return errors.New("--skill can only be used with a single suite")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := completion.LoadEnvFile(cfg.Secrets.EnvFile); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	evals, err := buildEvaluations(args, flagSkill)
	if err != nil {
		return err
	}

	baseURL := cfg.Completion.BaseURL
	if cfg.Gateway.Enabled {
		gw, err := gateway.Start(ctx, gateway.OptsFromConfig(cfg))
		if err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
		defer gw.Stop()
		baseURL = gw.BaseURL()
	}

	apiKey, err := completion.APIKey(cfg.Completion.APIKeyEnv)
	if err != nil {
		if !cfg.Gateway.Enabled {
			return err
		}
		slog.Debug("no api key, relying on gateway", "env", cfg.Completion.APIKeyEnv)
	}

	var usage *completion.UsageLog
	if cfg.Completion.UsageLog != "" {
		usage, err = completion.OpenUsageLog(cfg.Completion.UsageLog)
		if err != nil {
			return err
		}
		defer usage.Close()
	}

	table, err := loadPricing(cfg)
	if err != nil {
		return err
	}

	client := completion.NewClient(completion.ClientOpts{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		MaxTokens: cfg.Completion.MaxTokens,
		Timeout:   cfg.Completion.Timeout(),
		Usage:     usage,
	})

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)
	for i := range evals {
		evals[i].Dir = result.SkillDir(runDir, evals[i].SkillName)
	}

	p := pipeline.New(cfg, pipeline.Deps{
		Completer: client,
		Pacer:     completion.NewPacer(cfg.Completion.Delay()),
		Pricing:   table,
		Out:       os.Stdout,
	})
	for _, ev := range evals {
		fmt.Printf("Evaluating %s: %d tasks, %d quality prompts, %d selectivity tests (model %s)\n",
			ev.SkillName, len(ev.Suite.Tasks), len(ev.Suite.QualityPrompts), len(ev.Suite.SelectivityTests), cfg.Models.Task)
	}
	started := time.Now().UTC()
	outcomes, errs := p.EvaluateAll(ctx, evals, flagParallel)

	var lb *store.Store
	if cfg.Results.Leaderboard != "" && !flagNoStore {
		lb, err = store.Open(ctx, cfg.Results.Leaderboard)
		if err != nil {
			return err
		}
		defer lb.Close()
	}

	var failed []error
	for i, o := range outcomes {
		if errs[i] != nil {
			fmt.Printf("  ERROR: %s: %v\n", evals[i].SkillName, errs[i])
			failed = append(failed, fmt.Errorf("%s: %w", evals[i].SkillName, errs[i]))
			continue
		}
		fmt.Println(report.Card(o.Score))
		if flagShowTasks {
			if err := report.Tasks(o.Results, os.Stdout); err != nil {
				return err
			}
		}
		if lb != nil {
			if _, err := lb.Record(ctx, o.Score, cfg.Models.Task, runDir); err != nil {
				slog.Warn("recording score", "skill", o.Score.SkillName, "err", err)
			}
		}
	}

	fmt.Println("\n--- Results ---")
	if err := report.Generate(runDir, flagFormat, os.Stdout); err != nil {
		return err
	}
	if cfg.Completion.UsageLog != "" {
		if err := printUsage(cfg.Completion.UsageLog, started, table); err != nil {
			slog.Warn("summarizing usage", "err", err)
		}
	}
	return errors.Join(failed...)
}

// printUsage prices the calls this run appended to the usage log.
func printUsage(path string, since time.Time, table *pricing.Table) error {
	records, err := completion.ParseUsageLog(path)
	if err != nil {
		return err
	}
	records = slices.DeleteFunc(records, func(r completion.UsageRecord) bool {
		return r.Time.Before(since)
	})
	if len(records) == 0 {
		return nil
	}
	fmt.Println("\n--- Usage ---")
	return report.Usage(records, table, os.Stdout)
}

// buildEvaluations loads each suite and the skill it belongs to.
func buildEvaluations(suites []string, skillPath string) ([]pipeline.Evaluation, error) {
	evals := make([]pipeline.Evaluation, 0, len(suites))
	for _, path := range suites {
		suite, err := benchmark.LoadSuite(path)
		if err != nil {
			return nil, err
		}
		suite.Tasks = filterTasks(suite.Tasks, flagTask, flagDifficulty)
		if len(suite.Tasks) == 0 {
			return nil, fmt.Errorf("no tasks in %s match the filters", path)
		}
		if flagSkipQuality {
			suite.QualityPrompts = nil
		}
		if flagSkipSelect {
			suite.SelectivityTests = nil
		}

		sk, err := skill.Load(resolveSkillPath(path, skillPath))
		if err != nil {
			return nil, err
		}
		name := suite.SkillName
		if name == "" {
			name = sk.Name()
		}
		evals = append(evals, pipeline.Evaluation{
			Suite:        suite,
			SuitePath:    path,
			SkillName:    name,
			SkillFile:    sk.Path,
			SkillContext: sk.Context(),
		})
	}
	return evals, nil
}

func resolveSkillPath(suitePath, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(filepath.Dir(suitePath), skill.FileName)
}

func filterTasks(tasks []*benchmark.Task, ids, difficulty string) []*benchmark.Task {
	var want []string
	for id := range strings.SplitSeq(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			want = append(want, id)
		}
	}
	var filtered []*benchmark.Task
	for _, t := range tasks {
		if len(want) > 0 && !slices.Contains(want, t.ID) {
			continue
		}
		if difficulty != "" && !strings.EqualFold(string(t.Difficulty), difficulty) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

func loadPricing(cfg *config.Config) (*pricing.Table, error) {
	if cfg.Pricing.File == "" {
		return pricing.Default(), nil
	}
	return pricing.Load(cfg.Pricing.File)
}
