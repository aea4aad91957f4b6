package benchmark

import (
	"slices"
	"strings"
	"time"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// OutputType is what a task expects the model to hand back.
type OutputType string

const (
	OutputFile OutputType = "file"
	OutputCode OutputType = "code"
	OutputText OutputType = "text"
)

// Task is one concrete test scenario. Tasks are produced by the benchmark
// generator and never modified by the pipeline.
type Task struct {
	ID                 string     `yaml:"id" json:"id"`
	Prompt             string     `yaml:"prompt" json:"prompt"`
	Difficulty         Difficulty `yaml:"difficulty" json:"difficulty"`
	ExpectedOutputType OutputType `yaml:"expected_output_type" json:"expected_output_type"`
	ExpectedFileType   string     `yaml:"expected_file_type,omitempty" json:"expected_file_type,omitempty"`
	SuccessCriteria    Criteria   `yaml:"success_criteria" json:"success_criteria"`
	TestsClaim         string     `yaml:"tests_claim,omitempty" json:"tests_claim,omitempty"`
}

// FileExtension returns the expected extension normalized to ".ext" form,
// or "" when the task does not name one.
func (t *Task) FileExtension() string {
	return NormalizeExtension(t.ExpectedFileType)
}

func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// VerificationLevel records how much of a task's outcome was actually
// inspected rather than assumed.
type VerificationLevel string

const (
	VerificationFull    VerificationLevel = "full"
	VerificationPartial VerificationLevel = "partial"
	VerificationNone    VerificationLevel = "none"
)

// TaskResult is the write-once outcome of running a single task.
type TaskResult struct {
	TaskID            string            `json:"task_id"`
	Difficulty        Difficulty        `json:"difficulty,omitempty"`
	Passed            bool              `json:"passed"`
	CriteriaResults   map[string]bool   `json:"criteria_results"`
	Error             string            `json:"error,omitempty"`
	ExecutionTime     float64           `json:"execution_time"`
	FilesCreated      []string          `json:"files_created"`
	InputTokens       int               `json:"input_tokens"`
	OutputTokens      int               `json:"output_tokens"`
	Response          string            `json:"response,omitempty"`
	VerificationLevel VerificationLevel `json:"verification_level"`
	VerificationNotes map[string]string `json:"verification_notes,omitempty"`
	VerifiedPassed    int               `json:"verified_criteria_passed"`
	VerifiedTotal     int               `json:"verified_criteria_total"`
}

// NewFailedResult builds the result for a task that never produced output:
// every declared criterion is false.
func NewFailedResult(task *Task, err error, elapsed time.Duration) *TaskResult {
	criteria := make(map[string]bool, len(task.SuccessCriteria))
	for _, c := range task.SuccessCriteria {
		criteria[c.Name] = false
	}
	r := &TaskResult{
		TaskID:            task.ID,
		Difficulty:        task.Difficulty,
		CriteriaResults:   criteria,
		ExecutionTime:     elapsed.Seconds(),
		FilesCreated:      []string{},
		VerificationLevel: VerificationNone,
	}
	if err != nil {
		r.Error = err.Error()
	}
	r.Finalize(task)
	return r
}

// Finalize fills any criterion the task declares but the result lacks with
// false, then derives Passed and the verified criteria counts. Passed is the
// AND over the task's declared criteria only.
func (r *TaskResult) Finalize(task *Task) {
	if r.CriteriaResults == nil {
		r.CriteriaResults = make(map[string]bool, len(task.SuccessCriteria))
	}
	passed := true
	for _, c := range task.SuccessCriteria {
		ok, present := r.CriteriaResults[c.Name]
		if !present {
			r.CriteriaResults[c.Name] = false
		}
		if !ok {
			passed = false
		}
	}
	r.Passed = passed

	r.VerifiedTotal = len(r.CriteriaResults)
	r.VerifiedPassed = 0
	for _, ok := range r.CriteriaResults {
		if ok {
			r.VerifiedPassed++
		}
	}
	if r.FilesCreated == nil {
		r.FilesCreated = []string{}
	}
}

// FailedCriteria lists criteria that evaluated false, sorted by name.
func (r *TaskResult) FailedCriteria() []string {
	var failed []string
	for name, ok := range r.CriteriaResults {
		if !ok {
			failed = append(failed, name)
		}
	}
	slices.Sort(failed)
	return failed
}
