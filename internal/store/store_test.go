package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/signalnine/skillbench/internal/scoring"
	"github.com/signalnine/skillbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "db", "leaderboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLeaderboardKeepsLatestPerSkill(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Record(ctx, &scoring.SkillScore{SkillName: "xlsx", OverallScore: 55, Grade: "F"}, "m", "/runs/1")
	require.NoError(t, err)
	_, err = s.Record(ctx, &scoring.SkillScore{SkillName: "docx", OverallScore: 72, Grade: "C", QualityTested: true}, "m", "/runs/1")
	require.NoError(t, err)
	id, err := s.Record(ctx, &scoring.SkillScore{SkillName: "xlsx", OverallScore: 88.5, Grade: "B", TasksPassed: 4, TotalTasks: 5}, "m2", "/runs/2")
	require.NoError(t, err)

	board, err := s.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "xlsx", board[0].Skill)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, id, board[0].ID)
	assert.Equal(t, 88.5, board[0].OverallScore)
	assert.Equal(t, "m2", board[0].Model)
	assert.Equal(t, 4, board[0].TasksPassed)
	assert.Equal(t, "docx", board[1].Skill)
	assert.True(t, board[1].QualityTested)

	top, err := s.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	history, err := s.History(ctx, "xlsx")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "/runs/2", history[0].RunDir)
	assert.False(t, history[0].CreatedAt.IsZero())
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	_, err := s.Record(ctx, &scoring.SkillScore{SkillName: "pptx", OverallScore: 40}, "m", "/r")
	require.NoError(t, err)

	e, err := s.Get(ctx, "pptx")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Rank)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
