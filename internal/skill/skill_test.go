package skill_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/skillbench/internal/skill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skillMD = `---
name: xlsx
description: Build spreadsheets with formulas and charts
---

# Spreadsheets

Always use openpyxl.
`

func TestParse(t *testing.T) {
	s, err := skill.Parse(skillMD)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", s.Name())
	assert.Equal(t, "Build spreadsheets with formulas and charts", s.Frontmatter.Description)
	assert.True(t, strings.HasPrefix(s.Body, "# Spreadsheets"))
	assert.Equal(t, skillMD, s.Raw)
}

func TestParseWithoutFrontmatter(t *testing.T) {
	s, err := skill.Parse("# Just a body\n")
	require.NoError(t, err)
	assert.Equal(t, "", s.Name())
	assert.Equal(t, "# Just a body\n", s.Body)
}

func TestParseErrors(t *testing.T) {
	_, err := skill.Parse("  \n")
	require.Error(t, err)
	_, err = skill.Parse("---\nname: x\nno closing delimiter\n")
	require.ErrorContains(t, err, "closing frontmatter")
	_, err = skill.Parse("---\nname: [unterminated\n---\nbody")
	require.Error(t, err)
}

func TestLoadDirectoryFallsBackToDirName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pptx")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, skill.FileName), []byte("# Decks\n"), 0o644))

	s, err := skill.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "pptx", s.Name())
	assert.Equal(t, filepath.Join(dir, skill.FileName), s.Path)

	_, err = skill.Load(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestContext(t *testing.T) {
	s, err := skill.Parse(skillMD)
	require.NoError(t, err)
	ctx := s.Context()
	assert.True(t, strings.HasPrefix(ctx, "You have access to a skill: xlsx\n"))
	assert.Contains(t, ctx, "Always use openpyxl.")
	assert.Equal(t, "", skill.Wrap("x", "   "))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, skill.EstimateTokens(""))
	assert.Equal(t, 1, skill.EstimateTokens("abc"))
	assert.Equal(t, 2, skill.EstimateTokens("abcde"))
}
