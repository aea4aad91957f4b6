package codeblock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SyntaxResult is the outcome of a syntax check. Checked is false when no
// checker was available for the language, in which case Valid is assumed.
type SyntaxResult struct {
	Lang    string
	Valid   bool
	Checked bool
	Detail  string
}

const syntaxTimeout = 20 * time.Second

// Language folds fence info strings onto the names the checkers know.
func Language(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python", "python3", "py", "":
		return "python"
	case "go", "golang":
		return "go"
	case "typescript", "ts", "tsx":
		return "typescript"
	case "javascript", "js", "node", "jsx", "mjs":
		return "javascript"
	case "json":
		return "json"
	default:
		return strings.ToLower(lang)
	}
}

// CheckSyntax parses b without running it. Go and JSON are parsed
// in-process; the others shell out to their toolchain when it is installed.
func CheckSyntax(ctx context.Context, b Block) SyntaxResult {
	lang := Language(b.Lang)
	res := SyntaxResult{Lang: lang, Valid: true}
	switch lang {
	case "go":
		res.Checked = true
		src := b.Code
		if !strings.Contains(src, "package ") {
			src = "package snippet\n\n" + src
		}
		if _, err := parser.ParseFile(token.NewFileSet(), "snippet.go", src, parser.AllErrors); err != nil {
			res.Valid = false
			res.Detail = err.Error()
		}
	case "json":
		res.Checked = true
		if !json.Valid([]byte(b.Code)) {
			res.Valid = false
			res.Detail = "invalid JSON"
		}
	case "python":
		return runChecker(ctx, res, b.Code, ".py", "python3", "-m", "py_compile")
	case "typescript":
		return runChecker(ctx, res, b.Code, ".ts", "tsc", "--noEmit", "--skipLibCheck")
	case "javascript":
		return runChecker(ctx, res, b.Code, ".js", "node", "--check")
	default:
		res.Detail = fmt.Sprintf("no syntax checker for %q", lang)
	}
	return res
}

// runChecker writes code to a scratch file and runs tool against it. A
// missing tool leaves the result unchecked and valid.
func runChecker(ctx context.Context, res SyntaxResult, code, ext, tool string, args ...string) SyntaxResult {
	bin, err := exec.LookPath(tool)
	if err != nil {
		res.Detail = tool + " not installed"
		return res
	}
	dir, err := os.MkdirTemp("", "skillbench-syntax-")
	if err != nil {
		res.Detail = fmt.Sprintf("creating scratch dir: %v", err)
		return res
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "snippet"+ext)
	if err := os.WriteFile(file, []byte(code), 0o644); err != nil {
		res.Detail = fmt.Sprintf("writing snippet: %v", err)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, syntaxTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, append(args, file)...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Checked = true
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.Checked = true
		res.Valid = false
		res.Detail = strings.TrimSpace(strings.ReplaceAll(out.String(), file, "snippet"+ext))
	default:
		res.Detail = fmt.Sprintf("running %s: %v", tool, err)
	}
	return res
}

var (
	pyAnnotation = regexp.MustCompile(`def\s+\w+\s*\([^)]*\w\s*:\s*[\w\[\]., |]+[^)]*\)|\)\s*->\s*\S`)
	tsAnnotation = regexp.MustCompile(`(\w|\))\s*:\s*(string|number|boolean|any|unknown|void|never|[A-Z]\w*)(\[\])?\b|\binterface\s+\w+|\btype\s+\w+\s*=`)
	goDocComment = regexp.MustCompile(`(?m)^//.*\n(func|type)\s`)
)

// HasTypeAnnotations reports whether the block declares types textually.
func HasTypeAnnotations(b Block) bool {
	switch Language(b.Lang) {
	case "go":
		return true
	case "python":
		return pyAnnotation.MatchString(b.Code)
	case "typescript":
		return tsAnnotation.MatchString(b.Code)
	default:
		return false
	}
}

// HasDocstrings reports whether the block documents its definitions.
func HasDocstrings(b Block) bool {
	switch Language(b.Lang) {
	case "python":
		return strings.Contains(b.Code, `"""`) || strings.Contains(b.Code, `'''`)
	case "go":
		return goDocComment.MatchString(b.Code)
	case "typescript", "javascript":
		return strings.Contains(b.Code, "/**")
	default:
		return false
	}
}
