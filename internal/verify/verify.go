// Package verify inspects artifact files produced by a task and decides
// each of the task's success criteria against their contents.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/skillbench/internal/benchmark"
)

// Criteria the verifier leaves to the executor. They describe the model's
// response rather than the artifact.
var executorOwned = map[string]bool{
	benchmark.FileCreated:        true,
	benchmark.CodeExtracted:      true,
	benchmark.CodeCompiles:       true,
	benchmark.HasTypeAnnotations: true,
	benchmark.HasDocstrings:      true,
	benchmark.ResponseExists:     true,
	benchmark.ResponseRelevant:   true,
}

// Report is the outcome of inspecting one artifact.
type Report struct {
	Path   string
	Format string
	// Results holds a verdict for every requested criterion the verifier
	// decides. Executor-owned criteria are absent unless the file is
	// missing or unreadable, in which case everything requested is false.
	Results map[string]bool
	Notes   map[string]string
	// Assumed names criteria that were passed without inspection because
	// the format has no dedicated handler.
	Assumed []string
	Err     error
}

// inspection is what a format handler measured.
type inspection struct {
	size    int64
	present map[string]bool
	counts  map[string]int
	// checks lists the criterion names the handler can decide.
	checks map[string]bool
}

func newInspection(size int64, checks ...string) *inspection {
	in := &inspection{
		size:    size,
		present: map[string]bool{},
		counts:  map[string]int{},
		checks:  map[string]bool{benchmark.FileValid: true, benchmark.FileHasContent: true},
	}
	for _, c := range checks {
		in.checks[c] = true
	}
	return in
}

// File decides every applicable criterion for the file at path. It never
// fails: problems opening the file turn into false verdicts.
func File(path string, criteria benchmark.Criteria) map[string]bool {
	return Inspect(path, criteria).Results
}

// Notes explains each verdict in a short human-readable line.
func Notes(path string, criteria benchmark.Criteria) map[string]string {
	return Inspect(path, criteria).Notes
}

// Inspect dispatches on the file extension and evaluates criteria against
// what the handler found.
func Inspect(path string, criteria benchmark.Criteria) *Report {
	ext := strings.ToLower(filepath.Ext(path))
	rep := &Report{
		Path:    path,
		Format:  strings.TrimPrefix(ext, "."),
		Results: make(map[string]bool, len(criteria)),
		Notes:   make(map[string]string, len(criteria)),
	}

	if rep.Format == "" {
		rep.Format = "unknown"
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", path)
		}
		rep.Err = err
		rep.failAll(criteria, "file not found")
		return rep
	}

	var in *inspection
	switch ext {
	case ".xlsx":
		in, err = inspectSpreadsheet(path, info.Size())
	case ".docx":
		in, err = inspectDocument(path, info.Size())
	case ".pptx":
		in, err = inspectDeck(path, info.Size())
	default:
		rep.generic(info.Size(), criteria)
		return rep
	}
	if err != nil {
		rep.Err = err
		rep.failAll(criteria, fmt.Sprintf("could not open: %v", err))
		return rep
	}
	rep.evaluate(in, criteria)
	return rep
}

func (r *Report) failAll(criteria benchmark.Criteria, why string) {
	for _, c := range criteria {
		r.Results[c.Name] = false
		r.Notes[c.Name] = why
	}
}

// generic handles formats without a dedicated handler: a non-empty file is
// valid and every other criterion passes unchecked.
func (r *Report) generic(size int64, criteria benchmark.Criteria) {
	for _, c := range criteria {
		switch {
		case executorOwned[c.Name]:
		case c.Name == benchmark.FileValid, c.Name == benchmark.FileHasContent:
			r.Results[c.Name] = c.Satisfied(size > 0)
			r.Notes[c.Name] = fmt.Sprintf("file is %d bytes", size)
		default:
			r.Results[c.Name] = true
			r.Notes[c.Name] = fmt.Sprintf("assumed: .%s files are not inspected", r.Format)
			r.Assumed = append(r.Assumed, c.Name)
		}
	}
}

func (r *Report) evaluate(in *inspection, criteria benchmark.Criteria) {
	for _, c := range criteria {
		if executorOwned[c.Name] {
			continue
		}
		name := canonical(c.Name)
		switch {
		case name == benchmark.FileValid:
			r.Results[c.Name] = c.Satisfied(true)
			r.Notes[c.Name] = fmt.Sprintf("opened as %s", r.Format)
		case name == benchmark.FileHasContent:
			r.Results[c.Name] = c.Satisfied(in.size > 0)
			r.Notes[c.Name] = fmt.Sprintf("file is %d bytes", in.size)
		case !in.checks[name]:
			r.Results[c.Name] = false
			r.Notes[c.Name] = fmt.Sprintf("not applicable to .%s files", r.Format)
		case c.Kind == benchmark.KindThreshold:
			n := in.counts[name]
			r.Results[c.Name] = c.Meets(n)
			r.Notes[c.Name] = fmt.Sprintf("found %d %s, need %d", n, countNoun[name], c.Min)
		default:
			found := in.present[name]
			r.Results[c.Name] = c.Satisfied(found)
			if found {
				r.Notes[c.Name] = fmt.Sprintf("%s found", presenceNoun[name])
			} else {
				r.Notes[c.Name] = fmt.Sprintf("no %s found", presenceNoun[name])
			}
		}
	}
}

func canonical(name string) string {
	if name == benchmark.HasImages {
		return benchmark.HasImage
	}
	return name
}

var countNoun = map[string]string{
	benchmark.MinRows:       "non-empty rows",
	benchmark.MinColumns:    "non-empty columns",
	benchmark.MinSlides:     "slides",
	benchmark.MinParagraphs: "non-empty paragraphs",
	benchmark.MinWords:      "words",
}

var presenceNoun = map[string]string{
	benchmark.HasFormula: "formula",
	benchmark.HasChart:   "chart",
	benchmark.HasImage:   "image",
	benchmark.HasTable:   "table",
}
