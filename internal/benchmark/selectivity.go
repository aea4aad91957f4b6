package benchmark

import (
	"fmt"
	"slices"
)

// SelectivityTest is a prompt unrelated to the skill. The skill should
// leave it alone: answering is fine, producing the skill's artifacts is
// not.
type SelectivityTest struct {
	ID          string `yaml:"id" json:"id"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// SelectivityResult records whether the skill held back on one
// selectivity test.
type SelectivityResult struct {
	TestID        string   `json:"test_id"`
	Passed        bool     `json:"passed"`
	FilesCreated  []string `json:"files_created"`
	Explanation   string   `json:"explanation,omitempty"`
	Error         string   `json:"error,omitempty"`
	InputTokens   int      `json:"input_tokens"`
	OutputTokens  int      `json:"output_tokens"`
	ExecutionTime float64  `json:"execution_time"`
}

// NewFailedSelectivity is the result of a selectivity test that could not
// be run. It counts as a failure.
func NewFailedSelectivity(test *SelectivityTest, err error, elapsed float64) *SelectivityResult {
	return &SelectivityResult{
		TestID:        test.ID,
		FilesCreated:  []string{},
		Explanation:   fmt.Sprintf("error during test: %v", err),
		Error:         err.Error(),
		ExecutionTime: elapsed,
	}
}

// FileExtensions lists the artifact extensions the suite's tasks expect,
// sorted and without duplicates.
func (s *Suite) FileExtensions() []string {
	var exts []string
	for _, t := range s.Tasks {
		if ext := t.FileExtension(); ext != "" && !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}
