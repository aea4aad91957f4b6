// Package skill parses SKILL.md files and renders them as system context.
package skill

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the conventional name of a skill definition.
const FileName = "SKILL.md"

type Frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	License     string `yaml:"license,omitempty"`
}

type Skill struct {
	Frontmatter Frontmatter
	Body        string
	// Raw is the whole file, frontmatter included. It is what the model
	// sees.
	Raw  string
	Path string
}

// Load reads a SKILL.md file, or the SKILL.md inside a directory.
func Load(path string) (*Skill, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading skill %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skill %s: %w", path, err)
	}
	s, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	s.Path = path
	if s.Frontmatter.Name == "" {
		s.Frontmatter.Name = filepath.Base(filepath.Dir(path))
	}
	return s, nil
}

// Parse splits optional YAML frontmatter (between --- lines) from the body.
func Parse(content string) (*Skill, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("SKILL.md is empty")
	}
	s := &Skill{Raw: content, Body: content}
	if !strings.HasPrefix(content, "---") {
		return s, nil
	}

	rest := strings.TrimPrefix(content[3:], "\r")
	rest = strings.TrimPrefix(rest, "\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, errors.New("closing frontmatter delimiter not found")
	}
	if err := yaml.Unmarshal([]byte(rest[:idx]), &s.Frontmatter); err != nil {
		return nil, fmt.Errorf("unmarshalling frontmatter: %w", err)
	}
	body := rest[idx+4:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && strings.TrimSpace(body[:nl]) == "" {
		body = body[nl+1:]
	}
	s.Body = body
	return s, nil
}

func (s *Skill) Name() string { return s.Frontmatter.Name }

// Context is the system prompt that hands the skill to the model.
func (s *Skill) Context() string {
	return Wrap(s.Name(), s.Raw)
}

// Wrap renders skill content as system context. Empty content yields an
// empty context, which callers treat as "no skill".
func Wrap(name, content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have access to a skill: %s\n\n", name)
	b.WriteString("SKILL.md:\n---\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n---\n\n")
	b.WriteString("Follow these instructions when relevant. When creating files, write Python code that saves files to the specified directory.")
	return b.String()
}

// EstimateTokens approximates the token count of s at four characters per
// token.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
