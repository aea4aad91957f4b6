// Package result persists evaluation records under a run directory:
//
//	<base>/runs/<stamp>/skills/<skill>/meta.json
//	                                  /summary.json
//	                                  /task_results/<task id>.json
//	                                  /quality_comparisons/<n>.json
//	                                  /selectivity_results/<test id>.json
//	                                  /artifacts/<task id>/<file>
//
// <base>/latest points at the most recent run.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/compare"
	"github.com/signalnine/skillbench/internal/scoring"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName makes an identifier safe to use as a single path element.
func FileName(id string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(id, "_"), "._")
	if name == "" {
		return "unnamed"
	}
	return name
}

func SkillDir(runDir, skill string) string {
	return filepath.Join(runDir, skillsDir, FileName(skill))
}

func ArtifactDir(skillDir string) string {
	return filepath.Join(skillDir, artifactsDir)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func WriteMeta(skillDir string, meta *RunMeta) error {
	return writeJSON(filepath.Join(skillDir, metaFile), meta)
}

func ReadMeta(skillDir string) (*RunMeta, error) {
	var meta RunMeta
	if err := readJSON(filepath.Join(skillDir, metaFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func WriteTaskResult(skillDir string, r *benchmark.TaskResult) error {
	return writeJSON(filepath.Join(skillDir, taskResultsDir, FileName(r.TaskID)+".json"), r)
}

// WriteComparison stores the n-th comparison of a run, numbered from 1.
func WriteComparison(skillDir string, n int, q *compare.QualityComparison) error {
	return writeJSON(filepath.Join(skillDir, comparisonsDir, fmt.Sprintf("%03d.json", n)), q)
}

func WriteSelectivityResult(skillDir string, r *benchmark.SelectivityResult) error {
	return writeJSON(filepath.Join(skillDir, selectivityDir, FileName(r.TestID)+".json"), r)
}

func WriteSummary(skillDir string, s *scoring.SkillScore) error {
	return writeJSON(filepath.Join(skillDir, SummaryFile), s)
}

func ReadSummary(path string) (*scoring.SkillScore, error) {
	var s scoring.SkillScore
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadTaskResults loads every stored task result, ordered by file name.
func ReadTaskResults(skillDir string) ([]*benchmark.TaskResult, error) {
	var out []*benchmark.TaskResult
	err := readDir(filepath.Join(skillDir, taskResultsDir), func(path string) error {
		var r benchmark.TaskResult
		if err := readJSON(path, &r); err != nil {
			return err
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// ReadComparisons loads stored comparisons in the order they were run.
func ReadComparisons(skillDir string) ([]*compare.QualityComparison, error) {
	var out []*compare.QualityComparison
	err := readDir(filepath.Join(skillDir, comparisonsDir), func(path string) error {
		var q compare.QualityComparison
		if err := readJSON(path, &q); err != nil {
			return err
		}
		out = append(out, &q)
		return nil
	})
	return out, err
}

// ReadSelectivityResults loads every stored selectivity result, ordered by
// file name.
func ReadSelectivityResults(skillDir string) ([]*benchmark.SelectivityResult, error) {
	var out []*benchmark.SelectivityResult
	err := readDir(filepath.Join(skillDir, selectivityDir), func(path string) error {
		var r benchmark.SelectivityResult
		if err := readJSON(path, &r); err != nil {
			return err
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// readDir calls fn for each .json file in dir, sorted by name. A missing
// dir holds no records.
func readDir(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if err := fn(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// FindSkillDirs returns every directory under root holding a summary or
// task results, sorted. root may itself be a skill directory.
func FindSkillDirs(root string) ([]string, error) {
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		switch d.Name() {
		case artifactsDir, taskResultsDir, comparisonsDir, selectivityDir:
			return fs.SkipDir
		}
		if exists(filepath.Join(path, SummaryFile)) || exists(filepath.Join(path, taskResultsDir)) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	slices.Sort(dirs)
	return dirs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
