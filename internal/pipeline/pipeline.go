// Package pipeline runs one complete skill evaluation: every task through
// the executor, every quality prompt through the comparator, every
// selectivity prompt back through the executor, then scoring and
// persistence.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/compare"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/config"
	"github.com/signalnine/skillbench/internal/executor"
	"github.com/signalnine/skillbench/internal/pricing"
	"github.com/signalnine/skillbench/internal/result"
	"github.com/signalnine/skillbench/internal/sandbox"
	"github.com/signalnine/skillbench/internal/scoring"
	"github.com/signalnine/skillbench/internal/workspace"
)

// Deps are the collaborators shared by every evaluation. All of them must
// be safe for concurrent use when evaluations run in parallel.
type Deps struct {
	Completer completion.Completer
	// Judge defaults to Completer.
	Judge   completion.Completer
	Pacer   *completion.Pacer
	Pricing *pricing.Table
	// NewSandbox overrides the sandbox built from config.
	NewSandbox func() (sandbox.Executor, error)
	// Out receives human-readable progress lines.
	Out    io.Writer
	Logger *slog.Logger
}

type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pricing == nil {
		deps.Pricing = pricing.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Evaluation names what to evaluate and where to store it.
type Evaluation struct {
	Suite        *benchmark.Suite
	SuitePath    string
	SkillName    string
	SkillFile    string
	SkillContext string
	// Dir is the skill's result directory. Empty skips persistence.
	Dir string
}

type Outcome struct {
	Dir         string
	Results     []*benchmark.TaskResult
	Comparisons []*compare.QualityComparison
	Selectivity []*benchmark.SelectivityResult
	Score       *scoring.SkillScore
}

// ScoringOpts derives scorer options from config.
func ScoringOpts(cfg *config.Config, table *pricing.Table) scoring.Opts {
	seed := cfg.Scoring.Seed
	if seed == 0 {
		seed = -1
	}
	return scoring.Opts{
		Weights: scoring.Weights{Task: cfg.Scoring.TaskWeight, Quality: cfg.Scoring.QualityWeight},
		Metric:  scoring.TaskMetric(cfg.Scoring.TaskMetric),
		Pricing: table,
		Model:   cfg.Models.Task,
		Seed:    seed,
	}
}

func (p *Pipeline) sandbox() (sandbox.Executor, error) {
	if p.deps.NewSandbox != nil {
		return p.deps.NewSandbox()
	}
	s := p.cfg.Sandbox
	return sandbox.New(sandbox.Config{
		Mode:      s.Mode,
		Image:     s.Image,
		Python:    s.Python,
		Timeout:   s.Timeout(),
		MemoryMB:  s.MemoryMB,
		CPUs:      s.CPUs,
		PidsLimit: s.PidsLimit,
	})
}

// Evaluate runs ev to completion. Per-task and per-comparison failures are
// recorded as data; an error means the harness itself could not proceed.
func (p *Pipeline) Evaluate(ctx context.Context, ev Evaluation) (*Outcome, error) {
	started := time.Now().UTC()
	name := ev.SkillName
	if name == "" {
		name = ev.Suite.SkillName
	}
	log := p.deps.Logger.With("skill", name)
	out := p.deps.Out

	ws, err := workspace.NewManager(p.cfg.Sandbox.WorkDir)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	sb, err := p.sandbox()
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	log.Debug("evaluation starting", "workspace", ws.Root(), "sandbox", sb.Name())

	var artifactDir string
	if p.cfg.Sandbox.KeepArtifacts && ev.Dir != "" {
		artifactDir = result.ArtifactDir(ev.Dir)
	}
	ex := executor.New(executor.Opts{
		Completer:    p.deps.Completer,
		Model:        p.cfg.Models.Task,
		MaxTokens:    p.cfg.Completion.MaxTokens,
		Sandbox:      sb,
		Workspace:    ws,
		Pacer:        p.deps.Pacer,
		BlockTimeout: p.cfg.Sandbox.Timeout(),
		ArtifactDir:  artifactDir,
		Logger:       log,
	})
	var rng *rand.Rand
	if seed := p.cfg.Quality.Seed; seed != 0 {
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	cmp := compare.New(compare.Opts{
		Completer:  p.deps.Completer,
		Model:      p.cfg.Models.Task,
		MaxTokens:  p.cfg.Completion.MaxTokens,
		Judge:      p.deps.Judge,
		JudgeModel: p.cfg.Models.Judge,
		Rounds:     p.cfg.Quality.Rounds,
		Pacer:      p.deps.Pacer,
		Rand:       rng,
		Logger:     log,
	})

	o := &Outcome{Dir: ev.Dir}
	tasks := ev.Suite.Tasks
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation of %s interrupted: %w", name, err)
		}
		r := ex.Run(ctx, task, ev.SkillContext)
		o.Results = append(o.Results, r)
		fmt.Fprintf(out, "  [%s] task %d/%d %s: %s (%d/%d criteria, %.1fs)\n",
			name, i+1, len(tasks), task.ID, status(r), r.VerifiedPassed, r.VerifiedTotal, r.ExecutionTime)
		if ev.Dir != "" {
			if err := result.WriteTaskResult(ev.Dir, r); err != nil {
				return nil, fmt.Errorf("writing result for task %s: %w", task.ID, err)
			}
		}
	}

	prompts := ev.Suite.QualityPrompts
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation of %s interrupted: %w", name, err)
		}
		q := cmp.Compare(ctx, prompt, ev.SkillContext)
		o.Comparisons = append(o.Comparisons, q)
		fmt.Fprintf(out, "  [%s] quality %d/%d: %s\n", name, i+1, len(prompts), q.JudgeVerdict)
		if ev.Dir != "" {
			if err := result.WriteComparison(ev.Dir, i+1, q); err != nil {
				return nil, fmt.Errorf("writing comparison %d: %w", i+1, err)
			}
		}
	}

	checks := ev.Suite.SelectivityTests
	exts := ev.Suite.FileExtensions()
	for i, test := range checks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation of %s interrupted: %w", name, err)
		}
		r := ex.RunSelectivity(ctx, test, ev.SkillContext, exts)
		o.Selectivity = append(o.Selectivity, r)
		verdict := "PASS"
		if !r.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] selectivity %d/%d %s: %s\n", name, i+1, len(checks), test.ID, verdict)
		if ev.Dir != "" {
			if err := result.WriteSelectivityResult(ev.Dir, r); err != nil {
				return nil, fmt.Errorf("writing selectivity result %s: %w", test.ID, err)
			}
		}
	}

	o.Score = scoring.Score(name, o.Results, o.Comparisons, ScoringOpts(p.cfg, p.deps.Pricing))
	o.Score.AddSelectivity(o.Selectivity)
	log.Info("evaluation scored", "score", o.Score.OverallScore, "grade", o.Score.Grade)

	if ev.Dir != "" {
		if err := result.WriteSummary(ev.Dir, o.Score); err != nil {
			return nil, fmt.Errorf("writing summary: %w", err)
		}
		meta := &result.RunMeta{
			Skill:         name,
			Suite:         ev.SuitePath,
			SkillFile:     ev.SkillFile,
			Model:         p.cfg.Models.Task,
			JudgeModel:    p.cfg.Models.Judge,
			Sandbox:       sb.Name(),
			TaskMetric:    p.cfg.Scoring.TaskMetric,
			TaskWeight:    p.cfg.Scoring.TaskWeight,
			QualityWeight: p.cfg.Scoring.QualityWeight,
			StartedAt:     started,
			FinishedAt:    time.Now().UTC(),
		}
		if err := result.WriteMeta(ev.Dir, meta); err != nil {
			return nil, fmt.Errorf("writing meta: %w", err)
		}
	}
	return o, nil
}

// EvaluateAll runs evaluations with at most parallel in flight. Outcomes
// and errors are indexed like evals.
func (p *Pipeline) EvaluateAll(ctx context.Context, evals []Evaluation, parallel int) ([]*Outcome, []error) {
	outcomes := make([]*Outcome, len(evals))
	jobs := make([]Job, len(evals))
	for i, ev := range evals {
		jobs[i] = func() error {
			o, err := p.Evaluate(ctx, ev)
			outcomes[i] = o
			return err
		}
	}
	return outcomes, RunPool(parallel, jobs)
}

// Rescore recomputes a stored evaluation's score from its task results,
// comparisons and selectivity results and rewrites its summary. No model is called.
func Rescore(skillDir, name string, opts scoring.Opts) (*Outcome, error) {
	results, err := result.ReadTaskResults(skillDir)
	if err != nil {
		return nil, err
	}
	comps, err := result.ReadComparisons(skillDir)
	if err != nil {
		return nil, err
	}
	checks, err := result.ReadSelectivityResults(skillDir)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if meta, err := result.ReadMeta(skillDir); err == nil {
			name = meta.Skill
		}
	}
	o := &Outcome{Dir: skillDir, Results: results, Comparisons: comps, Selectivity: checks}
	o.Score = scoring.Score(name, results, comps, opts)
	o.Score.AddSelectivity(checks)
	if err := result.WriteSummary(skillDir, o.Score); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}
	return o, nil
}

func status(r *benchmark.TaskResult) string {
	switch {
	case r.Error != "":
		return "ERROR"
	case r.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}
