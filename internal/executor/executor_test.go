package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/executor"
	"github.com/signalnine/skillbench/internal/sandbox"
	"github.com/signalnine/skillbench/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeCompleter struct {
	text string
	err  error
	reqs []completion.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, r completion.Request) (*completion.Response, error) {
	f.reqs = append(f.reqs, r)
	if f.err != nil {
		return nil, f.err
	}
	return &completion.Response{Text: f.text, InputTokens: 100, OutputTokens: 40, Model: r.Model}, nil
}

// fakeSandbox stands in for script execution by writing fixed files into
// the working directory.
type fakeSandbox struct {
	files map[string]string
	// copies maps a file name in the working directory to a prepared
	// artifact on disk.
	copies  map[string]string
	scripts []string
	dirs    []string
}

func (f *fakeSandbox) Name() string           { return "fake" }
func (f *fakeSandbox) Dir(host string) string { return host }
func (f *fakeSandbox) Exec(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	f.scripts = append(f.scripts, req.Script(req.WorkDir))
	f.dirs = append(f.dirs, req.WorkDir)
	for name, body := range f.files {
		if err := os.WriteFile(filepath.Join(req.WorkDir, name), []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	for name, src := range f.copies {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(req.WorkDir, name), data, 0o644); err != nil {
			return nil, err
		}
	}
	return &sandbox.Outcome{}, nil
}

func task(t *testing.T, typ benchmark.OutputType, ext string, raw map[string]any) *benchmark.Task {
	t.Helper()
	cs, err := benchmark.ParseCriteria(raw)
	require.NoError(t, err)
	return &benchmark.Task{
		ID:                 "t1",
		Prompt:             "Make a report",
		Difficulty:         benchmark.Medium,
		ExpectedOutputType: typ,
		ExpectedFileType:   ext,
		SuccessCriteria:    cs,
	}
}

func newExecutor(t *testing.T, c completion.Completer, sb sandbox.Executor) (*executor.Executor, *workspace.Manager) {
	t.Helper()
	ws, err := workspace.NewManager(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	return executor.New(executor.Opts{Completer: c, Model: "m", Sandbox: sb, Workspace: ws}), ws
}

const fileResponse = "Here you go:\n\n```python\nimport csv\nwith open(f\"{OUTPUT_DIR}/report.csv\", \"w\") as fh:\n    csv.writer(fh).writerow([1, 2, 3])\n```\n"

func TestRunFileTaskGenericFormat(t *testing.T) {
	c := &fakeCompleter{text: fileResponse}
	sb := &fakeSandbox{files: map[string]string{"report.csv": "1,2,3\n", "notes.txt": "ignored"}}
	ex, ws := newExecutor(t, c, sb)
	tk := task(t, benchmark.OutputFile, "csv", map[string]any{
		"file_created": true, "file_valid": true, "has_chart": true,
	})

	res := ex.Run(context.Background(), tk, "SKILL CONTEXT")

	assert.True(t, res.Passed)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"report.csv"}, res.FilesCreated)
	assert.Equal(t, benchmark.VerificationPartial, res.VerificationLevel, "has_chart is assumed for csv")
	assert.Equal(t, 3, res.VerifiedTotal)
	assert.Equal(t, 100, res.InputTokens)

	require.Len(t, c.reqs, 1)
	assert.Equal(t, "SKILL CONTEXT", c.reqs[0].System)
	assert.Equal(t, "task:t1", c.reqs[0].Tag)
	assert.Contains(t, c.reqs[0].Prompt, "OUTPUT_DIR = ")

	require.Len(t, sb.scripts, 1)
	assert.True(t, strings.HasPrefix(sb.scripts[0], "import os\n"))
	assert.NoDirExists(t, sb.dirs[0], "working directory is removed after the task")
	entries, err := os.ReadDir(ws.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// budgetWorkbook writes a workbook with four data rows and a total formula.
func budgetWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{{"item", "cost"}, {"rent", 1200}, {"food", 300}, {"power", 90}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SetCellFormula("Sheet1", "B5", "SUM(B2:B4)"))
	path := filepath.Join(t.TempDir(), "budget.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRunSpreadsheetTaskInspectsArtifact(t *testing.T) {
	book := budgetWorkbook(t)
	tests := []struct {
		name     string
		criteria map[string]any
		want     map[string]bool
		passed   bool
	}{
		{
			name:     "all met",
			criteria: map[string]any{"file_created": true, "file_valid": true, "has_formula": true, "min_rows": 5, "min_columns": 2},
			want:     map[string]bool{"file_created": true, "file_valid": true, "has_formula": true, "min_rows": true, "min_columns": true},
			passed:   true,
		},
		{
			name:     "chart and rows missing",
			criteria: map[string]any{"file_created": true, "has_chart": true, "min_rows": 10},
			want:     map[string]bool{"file_created": true, "has_chart": false, "min_rows": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := &fakeSandbox{copies: map[string]string{"budget.xlsx": book}}
			ex, _ := newExecutor(t, &fakeCompleter{text: fileResponse}, sb)
			tk := task(t, benchmark.OutputFile, "xlsx", tt.criteria)

			res := ex.Run(context.Background(), tk, "")

			assert.Equal(t, tt.want, res.CriteriaResults)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, []string{"budget.xlsx"}, res.FilesCreated)
			assert.Equal(t, benchmark.VerificationFull, res.VerificationLevel)
			assert.NotEmpty(t, res.VerificationNotes["min_rows"])
		})
	}
}

func TestRunFileTaskWithoutArtifact(t *testing.T) {
	c := &fakeCompleter{text: "I cannot create files, sorry."}
	sb := &fakeSandbox{}
	ex, _ := newExecutor(t, c, sb)
	tk := task(t, benchmark.OutputFile, ".xlsx", map[string]any{
		"file_created": true, "has_formula": true, "min_rows": 3,
	})

	res := ex.Run(context.Background(), tk, "")

	assert.False(t, res.Passed)
	assert.Empty(t, sb.scripts)
	assert.Equal(t, map[string]bool{"file_created": false, "has_formula": false, "min_rows": false}, res.CriteriaResults)
	assert.Equal(t, "no artifact produced", res.VerificationNotes["has_formula"])
	assert.Equal(t, benchmark.VerificationFull, res.VerificationLevel)
	assert.Equal(t, []string{}, res.FilesCreated)
}

func TestRunKeepsArtifact(t *testing.T) {
	c := &fakeCompleter{text: fileResponse}
	sb := &fakeSandbox{files: map[string]string{"report.csv": "a,b\n"}}
	ws, err := workspace.NewManager("")
	require.NoError(t, err)
	defer ws.Close()
	keep := t.TempDir()
	ex := executor.New(executor.Opts{Completer: c, Sandbox: sb, Workspace: ws, ArtifactDir: keep})

	res := ex.Run(context.Background(), task(t, benchmark.OutputFile, ".csv", map[string]any{"file_created": true}), "")
	require.True(t, res.Passed)
	assert.FileExists(t, filepath.Join(keep, "t1", "report.csv"))
}

func TestRunCompletionError(t *testing.T) {
	c := &fakeCompleter{err: errors.New("upstream 503")}
	ex, _ := newExecutor(t, c, &fakeSandbox{})
	tk := task(t, benchmark.OutputText, "", map[string]any{"response_exists": true})

	res := ex.Run(context.Background(), tk, "")

	assert.False(t, res.Passed)
	assert.Equal(t, "upstream 503", res.Error)
	assert.Equal(t, map[string]bool{"response_exists": false}, res.CriteriaResults)
	assert.Equal(t, benchmark.VerificationNone, res.VerificationLevel)
	assert.Zero(t, res.InputTokens)
}

func TestRunTextTask(t *testing.T) {
	long := strings.Repeat("The quarterly numbers improved. ", 5)
	tests := []struct {
		name string
		text string
		want map[string]bool
	}{
		{"long", long, map[string]bool{"response_exists": true, "response_relevant": true}},
		{"short", "Yes.", map[string]bool{"response_exists": true, "response_relevant": false}},
		{"blank", "  \n", map[string]bool{"response_exists": false, "response_relevant": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, _ := newExecutor(t, &fakeCompleter{text: tt.text}, &fakeSandbox{})
			tk := task(t, benchmark.OutputText, "", map[string]any{"response_exists": true, "response_relevant": true})
			res := ex.Run(context.Background(), tk, "")
			assert.Equal(t, tt.want, res.CriteriaResults)
			assert.Equal(t, tt.want["response_relevant"], res.Passed)
		})
	}
}

func TestRunTextTaskPromptUnchanged(t *testing.T) {
	c := &fakeCompleter{text: "ok"}
	ex, _ := newExecutor(t, c, &fakeSandbox{})
	ex.Run(context.Background(), task(t, benchmark.OutputText, "", map[string]any{"response_exists": true}), "")
	require.Len(t, c.reqs, 1)
	assert.Equal(t, "Make a report", c.reqs[0].Prompt)
}

func TestRunCodeTask(t *testing.T) {
	good := "```go\nfunc Add(a, b int) int { return a + b }\n```\n"
	bad := "```go\nfunc Add(a, b int) int { return a + \n```\n"
	criteria := map[string]any{"code_extracted": true, "code_compiles": true}

	ex, _ := newExecutor(t, &fakeCompleter{text: good}, &fakeSandbox{})
	res := ex.Run(context.Background(), task(t, benchmark.OutputCode, "", criteria), "")
	assert.True(t, res.Passed)
	assert.Equal(t, benchmark.VerificationFull, res.VerificationLevel)

	ex, _ = newExecutor(t, &fakeCompleter{text: bad}, &fakeSandbox{})
	res = ex.Run(context.Background(), task(t, benchmark.OutputCode, "", criteria), "")
	assert.False(t, res.Passed)
	assert.True(t, res.CriteriaResults["code_extracted"])
	assert.False(t, res.CriteriaResults["code_compiles"])
	assert.Contains(t, res.VerificationNotes["code_compiles"], "syntax error")

	ex, _ = newExecutor(t, &fakeCompleter{text: "no code here"}, &fakeSandbox{})
	res = ex.Run(context.Background(), task(t, benchmark.OutputCode, "", criteria), "")
	assert.Equal(t, map[string]bool{"code_extracted": false, "code_compiles": false}, res.CriteriaResults)
}

func TestRunUnknownCriterionFails(t *testing.T) {
	ex, _ := newExecutor(t, &fakeCompleter{text: "hello"}, &fakeSandbox{})
	tk := task(t, benchmark.OutputText, "", map[string]any{"response_exists": true, "is_funny": true})
	res := ex.Run(context.Background(), tk, "")
	assert.False(t, res.Passed)
	assert.Contains(t, res.CriteriaResults, "is_funny")
}

func TestBuildPrompt(t *testing.T) {
	tk := &benchmark.Task{Prompt: "Build a deck", ExpectedOutputType: benchmark.OutputFile}
	p := executor.BuildPrompt(tk, "/workspace")
	assert.True(t, strings.HasPrefix(p, "Build a deck\n\nIMPORTANT:"))
	assert.Contains(t, p, `OUTPUT_DIR = "/workspace"`)
	assert.Contains(t, p, "Use OUTPUT_DIR for the output path.")
}

func TestRunSelectivity(t *testing.T) {
	test := &benchmark.SelectivityTest{ID: "capital", Prompt: "What is the capital of France?"}
	tests := []struct {
		name   string
		text   string
		files  map[string]string
		exts   []string
		passed bool
		count  int
	}{
		{"plain answer", "Paris.", nil, []string{".xlsx"}, true, 0},
		{"unrelated file", fileResponse, map[string]string{"report.csv": "1,2,3\n"}, []string{".xlsx"}, true, 0},
		{"skill artifact", fileResponse, map[string]string{"report.xlsx": "x"}, []string{".docx", ".xlsx"}, false, 1},
		{"any file without extensions", fileResponse, map[string]string{"report.csv": "1\n"}, nil, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{text: tt.text}
			sb := &fakeSandbox{files: tt.files}
			ex, _ := newExecutor(t, c, sb)

			res := ex.RunSelectivity(context.Background(), test, "SKILL CONTEXT", tt.exts)

			assert.Equal(t, "capital", res.TestID)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Len(t, res.FilesCreated, tt.count)
			if tt.passed {
				assert.Empty(t, res.Explanation)
			} else {
				assert.Contains(t, res.Explanation, "unrelated prompt")
			}
			require.Len(t, c.reqs, 1)
			assert.Equal(t, "SKILL CONTEXT", c.reqs[0].System)
			assert.Equal(t, "selectivity:capital", c.reqs[0].Tag)
			assert.True(t, strings.HasPrefix(c.reqs[0].Prompt, test.Prompt))
		})
	}
}

func TestRunSelectivityCompletionError(t *testing.T) {
	ex, _ := newExecutor(t, &fakeCompleter{err: errors.New("rate limited")}, &fakeSandbox{})
	res := ex.RunSelectivity(context.Background(), &benchmark.SelectivityTest{ID: "s1", Prompt: "hi"}, "", nil)
	assert.False(t, res.Passed)
	assert.Equal(t, "rate limited", res.Error)
	assert.Contains(t, res.Explanation, "rate limited")
}
