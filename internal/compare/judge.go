package compare

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed verdict.schema.json
var verdictSchemaJSON string

var verdictSchema *jsonschema.Schema

func init() {
	var doc any
	if err := json.Unmarshal([]byte(verdictSchemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("parsing embedded verdict schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("verdict.schema.json", doc); err != nil {
		panic(fmt.Sprintf("adding verdict schema: %v", err))
	}
	sch, err := c.Compile("verdict.schema.json")
	if err != nil {
		panic(fmt.Sprintf("compiling verdict schema: %v", err))
	}
	verdictSchema = sch
}

// MaxOutputChars caps each response shown to the judge.
const MaxOutputChars = 8000

// Pick is the judge's choice in presentation order.
type Pick int

const (
	PickTie Pick = iota
	PickFirst
	PickSecond
)

func (p Pick) String() string {
	switch p {
	case PickFirst:
		return "first"
	case PickSecond:
		return "second"
	default:
		return "tie"
	}
}

var pickAliases = map[string]Pick{
	"first": PickFirst, "1": PickFirst, "a": PickFirst, "one": PickFirst,
	"response 1": PickFirst, "response a": PickFirst, "output 1": PickFirst, "output a": PickFirst,
	"second": PickSecond, "2": PickSecond, "b": PickSecond, "two": PickSecond,
	"response 2": PickSecond, "response b": PickSecond, "output 2": PickSecond, "output b": PickSecond,
	"tie": PickTie, "draw": PickTie, "equal": PickTie, "neither": PickTie, "both": PickTie,
}

var errNoJSON = errors.New("no JSON object found")

// ParseVerdict pulls the verdict object out of a judge response that may
// wrap it in code fences, preamble or trailing prose.
func ParseVerdict(content string) (Pick, string, error) {
	var lastErr error = errNoJSON
	for _, candidate := range jsonObjects(content) {
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			lastErr = err
			continue
		}
		if err := verdictSchema.Validate(doc); err != nil {
			lastErr = fmt.Errorf("verdict object: %w", err)
			continue
		}
		obj := doc.(map[string]any)
		raw := fmt.Sprint(obj["verdict"])
		if f, ok := obj["verdict"].(float64); ok {
			raw = fmt.Sprintf("%d", int(f))
		}
		pick, ok := pickAliases[normalizeVerdict(raw)]
		if !ok {
			lastErr = fmt.Errorf("unknown verdict %q", raw)
			continue
		}
		reasoning, _ := obj["reasoning"].(string)
		return pick, strings.TrimSpace(reasoning), nil
	}
	return PickTie, "", lastErr
}

func normalizeVerdict(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Trim(v, `"'.!`)
	return strings.Join(strings.Fields(v), " ")
}

// jsonObjects returns every balanced {...} span in s, outermost first,
// ignoring braces inside JSON strings.
func jsonObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		end := matchBrace(s, start)
		if end < 0 {
			break
		}
		out = append(out, s[start:end+1])
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n[truncated from %d characters]", len(s))
}

// JudgePrompt renders the comparison request. first and second are the
// responses in presentation order.
func JudgePrompt(prompt, first, second string) string {
	return fmt.Sprintf(`You are an expert judge evaluating AI assistant outputs.

Original user request:
%s

---

Response 1:
%s

---

Response 2:
%s

---

Evaluate both responses on:
1. Correctness - does it properly address the request?
2. Completeness - is the response thorough?
3. Quality - is it well structured and professional?
4. Usefulness - would this help the user?

Respond with ONLY a JSON object:
{"verdict": "first" or "second" or "tie", "reasoning": "brief explanation"}

If the responses are substantially equivalent in quality, choose "tie".`,
		prompt, truncate(first, MaxOutputChars), truncate(second, MaxOutputChars))
}
