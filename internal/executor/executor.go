// Package executor runs a single benchmark task: it asks the completion
// service for a response, materializes any artifact the response describes
// and decides the task's criteria.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/codeblock"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/sandbox"
	"github.com/signalnine/skillbench/internal/verify"
	"github.com/signalnine/skillbench/internal/workspace"
)

// MinRelevantLength is the response length at which a text response is
// considered relevant.
const MinRelevantLength = 100

type Opts struct {
	Completer completion.Completer
	Model     string
	MaxTokens int
	Sandbox   sandbox.Executor
	Workspace *workspace.Manager
	Pacer     *completion.Pacer
	// BlockTimeout bounds each executed code block. Zero means the
	// sandbox default.
	BlockTimeout time.Duration
	// ArtifactDir, when set, receives a copy of each task's primary
	// artifact under ArtifactDir/<task id>/.
	ArtifactDir string
	Logger      *slog.Logger
}

type Executor struct {
	opts Opts
	log  *slog.Logger
}

func New(opts Opts) *Executor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Executor{opts: opts, log: log}
}

// Run executes task with skillContext as the system prompt (none when
// empty). It never returns nil and never fails: problems are recorded on
// the result.
func (e *Executor) Run(ctx context.Context, task *benchmark.Task, skillContext string) *benchmark.TaskResult {
	start := time.Now()
	log := e.log.With("task", task.ID)

	dir, err := e.opts.Workspace.Fresh()
	if err != nil {
		return benchmark.NewFailedResult(task, err, time.Since(start))
	}
	defer func() {
		if err := e.opts.Workspace.Reset(); err != nil {
			log.Warn("removing working directory", "err", err)
		}
	}()

	var watcher *workspace.Watcher
	if task.ExpectedOutputType == benchmark.OutputFile {
		if watcher, err = workspace.Watch(dir); err != nil {
			log.Debug("artifact watcher unavailable", "err", err)
		}
	}
	stopWatch := func() []string {
		if watcher == nil {
			return nil
		}
		w := watcher
		watcher = nil
		return w.Close()
	}
	defer stopWatch()

	if err := e.opts.Pacer.Wait(ctx); err != nil {
		return benchmark.NewFailedResult(task, fmt.Errorf("waiting to call model: %w", err), time.Since(start))
	}
	resp, err := e.opts.Completer.Complete(ctx, completion.Request{
		Model:     e.opts.Model,
		System:    skillContext,
		Prompt:    BuildPrompt(task, e.outputDir(dir)),
		MaxTokens: e.opts.MaxTokens,
		Tag:       "task:" + task.ID,
	})
	if err != nil {
		log.Warn("completion failed", "err", err)
		return benchmark.NewFailedResult(task, err, time.Since(start))
	}

	res := &benchmark.TaskResult{
		TaskID:            task.ID,
		Difficulty:        task.Difficulty,
		CriteriaResults:   map[string]bool{},
		VerificationNotes: map[string]string{},
		InputTokens:       resp.InputTokens,
		OutputTokens:      resp.OutputTokens,
		Response:          resp.Text,
	}

	blocks := codeblock.Extract(resp.Text)
	if task.ExpectedOutputType == benchmark.OutputFile {
		e.materialize(ctx, log, dir, blocks, task.FileExtension())
	}
	assumed := e.judgeResponse(ctx, task, resp.Text, blocks, res)

	files := workspace.Scan(dir, task.FileExtension(), stopWatch()...)
	res.FilesCreated = relativeTo(dir, files)
	if c, ok := task.SuccessCriteria.Get(benchmark.FileCreated); ok {
		res.CriteriaResults[c.Name] = c.Satisfied(len(files) > 0)
		res.VerificationNotes[c.Name] = fmt.Sprintf("%d matching files in working directory", len(files))
	}
	if len(files) > 0 {
		rep := verify.Inspect(files[0], task.SuccessCriteria)
		for name, ok := range rep.Results {
			if _, decided := res.CriteriaResults[name]; !decided {
				res.CriteriaResults[name] = ok
				res.VerificationNotes[name] = rep.Notes[name]
			}
		}
		if len(rep.Assumed) > 0 {
			assumed = true
		}
		e.keep(log, task.ID, files[0])
	} else {
		for _, c := range task.SuccessCriteria {
			if _, decided := res.CriteriaResults[c.Name]; !decided {
				res.VerificationNotes[c.Name] = "no artifact produced"
			}
		}
	}

	res.VerificationLevel = benchmark.VerificationFull
	if assumed {
		res.VerificationLevel = benchmark.VerificationPartial
	}
	res.ExecutionTime = time.Since(start).Seconds()
	res.Finalize(task)
	log.Debug("task finished", "passed", res.Passed, "files", len(files), "level", res.VerificationLevel)
	return res
}

// RunSelectivity sends an unrelated prompt with the skill loaded, runs any
// file-writing code in the answer and checks that none of the skill's
// artifact types (any file when exts is empty) appeared. Errors count as
// failures.
func (e *Executor) RunSelectivity(ctx context.Context, test *benchmark.SelectivityTest, skillContext string, exts []string) *benchmark.SelectivityResult {
	start := time.Now()
	log := e.log.With("selectivity", test.ID)

	dir, err := e.opts.Workspace.Fresh()
	if err != nil {
		return benchmark.NewFailedSelectivity(test, err, time.Since(start).Seconds())
	}
	defer func() {
		if err := e.opts.Workspace.Reset(); err != nil {
			log.Warn("removing working directory", "err", err)
		}
	}()

	if err := e.opts.Pacer.Wait(ctx); err != nil {
		return benchmark.NewFailedSelectivity(test, fmt.Errorf("waiting to call model: %w", err), time.Since(start).Seconds())
	}
	resp, err := e.opts.Completer.Complete(ctx, completion.Request{
		Model:     e.opts.Model,
		System:    skillContext,
		Prompt:    test.Prompt + "\n\nWorking directory: " + e.outputDir(dir),
		MaxTokens: e.opts.MaxTokens,
		Tag:       "selectivity:" + test.ID,
	})
	if err != nil {
		log.Warn("completion failed", "err", err)
		return benchmark.NewFailedSelectivity(test, err, time.Since(start).Seconds())
	}

	e.materialize(ctx, log, dir, codeblock.Extract(resp.Text), "")
	var files []string
	for _, f := range workspace.Scan(dir, "") {
		if len(exts) == 0 || slices.Contains(exts, strings.ToLower(filepath.Ext(f))) {
			files = append(files, f)
		}
	}

	res := &benchmark.SelectivityResult{
		TestID:        test.ID,
		Passed:        len(files) == 0,
		FilesCreated:  relativeTo(dir, files),
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		ExecutionTime: time.Since(start).Seconds(),
	}
	if !res.Passed {
		res.Explanation = fmt.Sprintf("skill created %d file(s) for an unrelated prompt", len(files))
	}
	log.Debug("selectivity test finished", "passed", res.Passed, "files", len(files))
	return res
}

// outputDir is the working directory as generated code will see it.
func (e *Executor) outputDir(hostDir string) string {
	if e.opts.Sandbox == nil {
		return hostDir
	}
	return e.opts.Sandbox.Dir(hostDir)
}

// BuildPrompt appends the output directory instructions for file tasks.
func BuildPrompt(task *benchmark.Task, outputDir string) string {
	if task.ExpectedOutputType != benchmark.OutputFile {
		return task.Prompt
	}
	var b strings.Builder
	b.WriteString(task.Prompt)
	fmt.Fprintf(&b, "\n\nIMPORTANT: Save any files using the OUTPUT_DIR variable (do NOT redefine it). OUTPUT_DIR = %q", outputDir)
	b.WriteString("\n\nProvide complete, executable Python code that creates the requested file. Use OUTPUT_DIR for the output path.")
	return b.String()
}

// materialize runs every candidate block, best first, inside the sandbox.
// Script outcomes only matter through the files they leave behind.
func (e *Executor) materialize(ctx context.Context, log *slog.Logger, dir string, blocks []codeblock.Block, ext string) {
	if e.opts.Sandbox == nil {
		return
	}
	candidates := codeblock.Candidates(blocks, ext)
	if len(candidates) == 0 {
		log.Debug("no runnable code block in response", "blocks", len(blocks))
		return
	}
	for i, cand := range candidates {
		code := cand.Code
		out, err := e.opts.Sandbox.Exec(ctx, sandbox.Request{
			Script:  func(d string) string { return codeblock.NeutralizeOutputDir(code, d) },
			WorkDir: dir,
			Timeout: e.opts.BlockTimeout,
		})
		if err != nil {
			log.Debug("code block did not run", "block", i, "score", cand.Score, "err", err)
			continue
		}
		log.Debug("code block ran", "block", i, "score", cand.Score, "sandbox", e.opts.Sandbox.Name(),
			"exit_code", out.ExitCode, "timed_out", out.TimedOut, "duration", out.Duration)
		if ctx.Err() != nil {
			return
		}
	}
}

// judgeResponse decides the criteria that describe the response itself.
// It reports whether any verdict was assumed rather than checked.
func (e *Executor) judgeResponse(ctx context.Context, task *benchmark.Task, text string, blocks []codeblock.Block, res *benchmark.TaskResult) bool {
	assumed := false
	var syntax *codeblock.SyntaxResult
	for _, c := range task.SuccessCriteria {
		switch c.Name {
		case benchmark.CodeExtracted:
			res.CriteriaResults[c.Name] = c.Satisfied(len(blocks) > 0)
			res.VerificationNotes[c.Name] = fmt.Sprintf("%d code blocks in response", len(blocks))
		case benchmark.CodeCompiles:
			if len(blocks) == 0 {
				res.CriteriaResults[c.Name] = false
				res.VerificationNotes[c.Name] = "no code block to check"
				continue
			}
			if syntax == nil {
				sr := codeblock.CheckSyntax(ctx, blocks[0])
				syntax = &sr
			}
			res.CriteriaResults[c.Name] = c.Satisfied(syntax.Valid)
			switch {
			case !syntax.Checked:
				assumed = true
				res.VerificationNotes[c.Name] = fmt.Sprintf("assumed: no %s checker installed", syntax.Lang)
			case syntax.Valid:
				res.VerificationNotes[c.Name] = fmt.Sprintf("%s parses", syntax.Lang)
			default:
				res.VerificationNotes[c.Name] = fmt.Sprintf("%s syntax error: %s", syntax.Lang, syntax.Detail)
			}
		case benchmark.HasTypeAnnotations:
			res.CriteriaResults[c.Name] = c.Satisfied(len(blocks) > 0 && codeblock.HasTypeAnnotations(blocks[0]))
		case benchmark.HasDocstrings:
			res.CriteriaResults[c.Name] = c.Satisfied(len(blocks) > 0 && codeblock.HasDocstrings(blocks[0]))
		case benchmark.ResponseExists:
			res.CriteriaResults[c.Name] = c.Satisfied(strings.TrimSpace(text) != "")
		case benchmark.ResponseRelevant:
			n := len(strings.TrimSpace(text))
			res.CriteriaResults[c.Name] = c.Satisfied(n >= MinRelevantLength)
			res.VerificationNotes[c.Name] = fmt.Sprintf("response is %d characters, need %d", n, MinRelevantLength)
		}
	}
	return assumed
}

// keep copies the primary artifact out of the working directory before it
// is discarded.
func (e *Executor) keep(log *slog.Logger, taskID, path string) {
	if e.opts.ArtifactDir == "" {
		return
	}
	dest := filepath.Join(e.opts.ArtifactDir, taskID, filepath.Base(path))
	if err := copyFile(path, dest); err != nil {
		log.Warn("saving artifact", "file", path, "err", err)
	}
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func relativeTo(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if rel, err := filepath.Rel(dir, f); err == nil {
			f = rel
		}
		out = append(out, filepath.ToSlash(f))
	}
	return out
}
