package benchmark

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed suite.schema.json
var suiteSchemaJSON string

var (
	suiteSchema  *jsonschema.Schema
	errorPrinter = message.NewPrinter(language.English)
)

func init() {
	var doc any
	if err := json.Unmarshal([]byte(suiteSchemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("parsing embedded suite schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("suite.schema.json", doc); err != nil {
		panic(fmt.Sprintf("adding suite schema: %v", err))
	}
	sch, err := c.Compile("suite.schema.json")
	if err != nil {
		panic(fmt.Sprintf("compiling suite schema: %v", err))
	}
	suiteSchema = sch
}

// Suite is a generated benchmark for one skill.
type Suite struct {
	SkillName      string   `yaml:"skill_name" json:"skill_name"`
	SkillClaims    []string `yaml:"skill_claims,omitempty" json:"skill_claims,omitempty"`
	Tasks          []*Task  `yaml:"tasks" json:"tasks"`
	QualityPrompts []string `yaml:"quality_prompts,omitempty" json:"quality_prompts,omitempty"`
	// SelectivityTests are unrelated prompts the skill should not act on.
	SelectivityTests []*SelectivityTest `yaml:"selectivity_tests,omitempty" json:"selectivity_tests,omitempty"`
	MissingCriteria  []string           `yaml:"missing_criteria,omitempty" json:"missing_criteria,omitempty"`
}

// SchemaError lists every location at which a suite document failed
// validation.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "suite does not match schema: " + strings.Join(e.Problems, "; ")
}

// LoadSuite reads a YAML or JSON suite file, validates it and fills
// defaults.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}
	s, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("loading suite %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// ParseSuite decodes suite bytes. JSON is a subset of YAML, so one decoder
// serves both.
func ParseSuite(data []byte) (*Suite, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}
	if problems := validateDocument(doc); len(problems) > 0 {
		return nil, &SchemaError{Problems: problems}
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding suite: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Suite) normalize() error {
	seen := make(map[string]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		if t == nil {
			return fmt.Errorf("task %d is empty", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true

		t.ExpectedFileType = NormalizeExtension(t.ExpectedFileType)
		if t.Difficulty == "" {
			t.Difficulty = Medium
		}
		if t.ExpectedOutputType == "" {
			if t.ExpectedFileType != "" {
				t.ExpectedOutputType = OutputFile
			} else {
				t.ExpectedOutputType = OutputText
			}
		}
		if len(t.SuccessCriteria) == 0 {
			t.SuccessCriteria = DefaultCriteria(t.ExpectedOutputType)
		}
	}

	seen = make(map[string]bool, len(s.SelectivityTests))
	for i, st := range s.SelectivityTests {
		if st == nil {
			return fmt.Errorf("selectivity test %d is empty", i)
		}
		if st.ID == "" {
			st.ID = fmt.Sprintf("selectivity_%d", i+1)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate selectivity test id %q", st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

// Task returns the task with the given id.
func (s *Suite) Task(id string) (*Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func validateDocument(doc any) []string {
	err := suiteSchema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var problems []string
	collectProblems(ve, &problems)
	return problems
}

func collectProblems(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(errorPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectProblems(c, out)
	}
}
