package benchmark

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Kind tags the variant a Criterion carries.
type Kind int

const (
	// KindPresence is a boolean expectation ("has_table": true).
	KindPresence Kind = iota + 1
	// KindThreshold is an integer minimum ("min_rows": 4).
	KindThreshold
	// KindUnknown is any name outside the catalogue. It is kept so that every
	// declared key still shows up in a task's results.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindPresence:
		return "presence"
	case KindThreshold:
		return "threshold"
	default:
		return "unknown"
	}
}

// Criterion is one named, independently checkable condition.
type Criterion struct {
	Name string
	Kind Kind
	// Want is the expected presence for KindPresence criteria.
	Want bool
	// Min is the inclusive minimum for KindThreshold criteria.
	Min int
	// Raw is the value as it appeared in the task definition.
	Raw any
}

// Satisfied reports whether an observed presence meets a presence criterion.
func (c Criterion) Satisfied(observed bool) bool {
	return observed == c.Want
}

// Meets reports whether a measured count meets a threshold criterion.
func (c Criterion) Meets(count int) bool {
	return count >= c.Min
}

// Criterion names understood by the verifier and the executor.
const (
	FileCreated        = "file_created"
	FileValid          = "file_valid"
	FileHasContent     = "file_has_content"
	HasFormula         = "has_formula"
	HasChart           = "has_chart"
	HasImage           = "has_image"
	HasImages          = "has_images"
	HasTable           = "has_table"
	MinRows            = "min_rows"
	MinColumns         = "min_columns"
	MinSlides          = "min_slides"
	MinParagraphs      = "min_paragraphs"
	MinWords           = "min_words"
	CodeExtracted      = "code_extracted"
	CodeCompiles       = "code_compiles"
	HasTypeAnnotations = "has_type_annotations"
	HasDocstrings      = "has_docstrings"
	ResponseExists     = "response_exists"
	ResponseRelevant   = "response_relevant"
)

// Catalogue maps every known criterion to its kind and a short description.
var Catalogue = map[string]struct {
	Kind        Kind
	Description string
}{
	FileCreated:        {KindPresence, "A file with the expected extension exists"},
	FileValid:          {KindPresence, "The file opens without errors"},
	FileHasContent:     {KindPresence, "The file is not empty"},
	HasFormula:         {KindPresence, "Spreadsheet contains formulas"},
	HasChart:           {KindPresence, "Contains a chart"},
	HasImage:           {KindPresence, "Contains an embedded image"},
	HasImages:          {KindPresence, "Contains embedded images"},
	HasTable:           {KindPresence, "Contains a table"},
	MinRows:            {KindThreshold, "Spreadsheet has minimum non-empty rows"},
	MinColumns:         {KindThreshold, "Spreadsheet has minimum non-empty columns"},
	MinSlides:          {KindThreshold, "Presentation has minimum slides"},
	MinParagraphs:      {KindThreshold, "Document has minimum non-empty paragraphs"},
	MinWords:           {KindThreshold, "Document has minimum word count"},
	CodeExtracted:      {KindPresence, "A code block was found in the response"},
	CodeCompiles:       {KindPresence, "Code parses without syntax errors"},
	HasTypeAnnotations: {KindPresence, "Code carries type annotations"},
	HasDocstrings:      {KindPresence, "Code carries docstrings"},
	ResponseExists:     {KindPresence, "A non-empty response was generated"},
	ResponseRelevant:   {KindPresence, "Response is long enough to address the prompt"},
}

// Criteria is a task's decoded success criteria, sorted by name.
type Criteria []Criterion

// ParseCriteria decodes a raw success_criteria mapping into typed criteria.
// Values are decoded weakly so 4, 4.0 and "4" are the same threshold.
func ParseCriteria(raw map[string]any) (Criteria, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(Criteria, 0, len(raw))
	for _, name := range names {
		c, err := parseCriterion(name, raw[name])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCriterion(name string, value any) (Criterion, error) {
	c := Criterion{Name: name, Raw: value, Kind: KindUnknown}
	entry, ok := Catalogue[name]
	if !ok {
		return c, nil
	}
	c.Kind = entry.Kind
	switch entry.Kind {
	case KindPresence:
		c.Want = true
		if value == nil {
			return c, nil
		}
		var want bool
		if err := mapstructure.WeakDecode(value, &want); err == nil {
			c.Want = want
		}
	case KindThreshold:
		var minimum int
		if err := mapstructure.WeakDecode(value, &minimum); err != nil {
			return c, fmt.Errorf("criterion %s: expected an integer minimum, got %v: %w", name, value, err)
		}
		if minimum < 0 {
			return c, fmt.Errorf("criterion %s: minimum must not be negative, got %d", name, minimum)
		}
		c.Min = minimum
	}
	return c, nil
}

// Names returns the criterion names in order.
func (cs Criteria) Names() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Get looks a criterion up by name.
func (cs Criteria) Get(name string) (Criterion, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Criterion{}, false
}

func (cs Criteria) Has(name string) bool {
	_, ok := cs.Get(name)
	return ok
}

// Map returns the criteria as a raw mapping.
func (cs Criteria) Map() map[string]any {
	m := make(map[string]any, len(cs))
	for _, c := range cs {
		switch {
		case c.Raw != nil:
			m[c.Name] = c.Raw
		case c.Kind == KindThreshold:
			m[c.Name] = c.Min
		default:
			m[c.Name] = c.Want
		}
	}
	return m
}

func (cs *Criteria) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding success_criteria: %w", err)
	}
	parsed, err := ParseCriteria(raw)
	if err != nil {
		return err
	}
	*cs = parsed
	return nil
}

func (cs Criteria) MarshalYAML() (any, error) {
	return cs.Map(), nil
}

func (cs *Criteria) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding success_criteria: %w", err)
	}
	parsed, err := ParseCriteria(raw)
	if err != nil {
		return err
	}
	*cs = parsed
	return nil
}

func (cs Criteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.Map())
}

// DefaultCriteria returns the criteria a task gets when its definition
// declares none.
func DefaultCriteria(t OutputType) Criteria {
	var raw map[string]any
	switch t {
	case OutputFile:
		raw = map[string]any{FileCreated: true, FileValid: true}
	case OutputCode:
		raw = map[string]any{CodeExtracted: true, CodeCompiles: true}
	default:
		raw = map[string]any{ResponseExists: true}
	}
	cs, _ := ParseCriteria(raw)
	return cs
}
