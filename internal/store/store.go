// Package store keeps a sqlite leaderboard of evaluated skills and the
// history of every evaluation recorded.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalnine/skillbench/internal/scoring"
)

var ErrNotFound = errors.New("skill not on leaderboard")

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	evaluation_id  TEXT PRIMARY KEY,
	skill          TEXT NOT NULL,
	model          TEXT NOT NULL,
	run_dir        TEXT NOT NULL,
	overall_score  REAL NOT NULL,
	grade          TEXT NOT NULL,
	task_rate      REAL NOT NULL,
	win_rate       REAL NOT NULL,
	quality_tested INTEGER NOT NULL,
	tasks_passed   INTEGER NOT NULL,
	total_tasks    INTEGER NOT NULL,
	cost_per_use   TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluations_skill ON evaluations (skill, created_at);
CREATE TABLE IF NOT EXISTS leaderboard (
	skill         TEXT PRIMARY KEY,
	evaluation_id TEXT NOT NULL REFERENCES evaluations (evaluation_id),
	updated_at    TEXT NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// Entry is one evaluation as recorded.
type Entry struct {
	ID            string
	Rank          int
	Skill         string
	Model         string
	RunDir        string
	OverallScore  float64
	Grade         string
	TaskRate      float64
	WinRate       float64
	QualityTested bool
	TasksPassed   int
	TotalTasks    int
	CostPerUse    string
	CreatedAt     time.Time
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating leaderboard dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening leaderboard %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating leaderboard schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record stores an evaluation and makes it the skill's leaderboard entry.
func (s *Store) Record(ctx context.Context, score *scoring.SkillScore, model, runDir string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO evaluations (evaluation_id, skill, model, run_dir, overall_score, grade, task_rate,
		 win_rate, quality_tested, tasks_passed, total_tasks, cost_per_use, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, score.SkillName, model, runDir, score.OverallScore, score.Grade, score.TaskCompletionRate,
		score.QualityWinRate, score.QualityTested, score.TasksPassed, score.TotalTasks,
		score.EstimatedCostPerUse, now,
	); err != nil {
		return "", fmt.Errorf("insert evaluation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO leaderboard (skill, evaluation_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (skill) DO UPDATE SET evaluation_id = excluded.evaluation_id, updated_at = excluded.updated_at`,
		score.SkillName, id, now,
	); err != nil {
		return "", fmt.Errorf("upsert leaderboard: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing evaluation: %w", err)
	}
	return id, nil
}

const entryColumns = `e.evaluation_id, e.skill, e.model, e.run_dir, e.overall_score, e.grade, e.task_rate,
	e.win_rate, e.quality_tested, e.tasks_passed, e.total_tasks, e.cost_per_use, e.created_at`

// Leaderboard returns the latest evaluation of each skill, best first.
// A limit of zero or less returns every skill.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM leaderboard l JOIN evaluations e ON e.evaluation_id = l.evaluation_id
		 ORDER BY e.overall_score DESC, e.skill ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// History returns every evaluation of skill, newest first.
func (s *Store) History(ctx context.Context, skill string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM evaluations e WHERE e.skill = ? ORDER BY e.created_at DESC, e.rowid DESC`, skill)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return scanEntries(rows)
}

// Get returns the skill's current leaderboard entry with its rank.
func (s *Store) Get(ctx context.Context, skill string) (*Entry, error) {
	entries, err := s.Leaderboard(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Skill == skill {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", skill, ErrNotFound)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Skill, &e.Model, &e.RunDir, &e.OverallScore, &e.Grade, &e.TaskRate,
			&e.WinRate, &e.QualityTested, &e.TasksPassed, &e.TotalTasks, &e.CostPerUse, &created); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		t, err := time.Parse(timeFormat, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}
