// Package codeblock pulls fenced code out of model responses and ranks the
// blocks that look like they write an output file.
package codeblock

import (
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is one fenced code block. Lang is the lower-cased info string, empty
// when the fence carried none.
type Block struct {
	Lang string
	Code string
}

// Extract returns every fenced code block in the response, in order.
func Extract(response string) []Block {
	source := []byte(response)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []Block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		blocks = append(blocks, Block{
			Lang: strings.ToLower(string(fence.Language(source))),
			Code: b.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// MinExecutableLength is the shortest block worth running. Shorter blocks
// are import lists or usage fragments.
const MinExecutableLength = 50

var fileKeywords = []string{
	"save", "write", "open(", "to_excel", "savefig",
	"pdfwriter", ".build(", "canvas", "workbook", "document",
}

var pythonLangs = map[string]bool{"python": true, "python3": true, "py": true}

// Candidate is a block the sandbox may execute, ranked by how likely it is
// to produce the expected artifact.
type Candidate struct {
	Block
	Score int
}

// Candidates filters blocks down to runnable Python that appears to write
// files, highest score first. Blocks with equal scores keep response order.
// Unlabeled fences are considered only when no block is labeled Python.
func Candidates(blocks []Block, ext string) []Candidate {
	labeled := slices.ContainsFunc(blocks, func(b Block) bool { return pythonLangs[b.Lang] })

	var out []Candidate
	for _, b := range blocks {
		switch {
		case pythonLangs[b.Lang]:
		case b.Lang == "" && !labeled:
		default:
			continue
		}
		if len(strings.TrimSpace(b.Code)) < MinExecutableLength {
			continue
		}
		score := keywordHits(b.Code)
		if score == 0 {
			continue
		}
		if strings.Contains(b.Code, "OUTPUT_DIR") {
			score += 2
		}
		if ext != "" && strings.Contains(strings.ToLower(b.Code), ext) {
			score++
		}
		out = append(out, Candidate{Block: b, Score: score})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return b.Score - a.Score })
	return out
}

func keywordHits(code string) int {
	lower := strings.ToLower(code)
	n := 0
	for _, kw := range fileKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

var (
	outputDirAssign = regexp.MustCompile(`(?m)^OUTPUT_DIR\s*=.*$`)
	outputDirEnv    = regexp.MustCompile(`(?m)OUTPUT_DIR\s*=\s*os\.environ\.get.*$`)
)

// NeutralizeOutputDir strips any re-declaration of OUTPUT_DIR from code and
// prepends a prelude that pins it, and the working directory, to dir.
func NeutralizeOutputDir(code, dir string) string {
	clean := outputDirAssign.ReplaceAllString(code, "")
	clean = outputDirEnv.ReplaceAllString(clean, "")
	quoted := pyQuote(dir)
	return "import os\nos.makedirs(" + quoted + ", exist_ok=True)\nos.chdir(" + quoted + ")\nOUTPUT_DIR = " + quoted + "\n\n" + clean
}

func pyQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
