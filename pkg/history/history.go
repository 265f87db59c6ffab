// Package history records journey runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entrhq/journeyforge/pkg/fsutil"
	"github.com/entrhq/journeyforge/pkg/journey"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	journey         TEXT NOT NULL,
	success         INTEGER NOT NULL,
	started_at      INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	completed_steps INTEGER NOT NULL,
	total_steps     INTEGER NOT NULL,
	error_count     INTEGER NOT NULL,
	result          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_journey_started ON runs (journey, started_at DESC);
`

// Run is one stored run without its full result.
type Run struct {
	ID             string        `json:"journeyId"`
	Journey        string        `json:"name"`
	Success        bool          `json:"success"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
	CompletedSteps int           `json:"completedSteps"`
	TotalSteps     int           `json:"totalSteps"`
	Errors         int           `json:"errors"`
}

// Stats aggregates the runs of one journey.
type Stats struct {
	Journey         string        `json:"name"`
	Runs            int           `json:"runs"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"averageDuration"`
	LastRun         time.Time     `json:"lastRun,omitempty"`
}

// Store is a run history backed by database/sql.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores res. Recording the same journey id twice replaces the row.
func (s *Store) Record(ctx context.Context, res *journey.Result) error {
	if res == nil || res.JourneyID == "" {
		return fmt.Errorf("run result with a journey id is required")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, journey, success, started_at, duration_ms, completed_steps, total_steps, error_count, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.JourneyID, res.Name, boolInt(res.Success), res.StartedAt.UnixMilli(),
		res.Duration.Milliseconds(), res.CompletedSteps, res.TotalSteps, len(res.Errors), string(data))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first. An empty name lists
// every journey; limit <= 0 means 20.
func (s *Store) List(ctx context.Context, name string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, journey, success, started_at, duration_ms, completed_steps, total_steps, error_count
		FROM runs`
	args := []any{}
	if name != "" {
		query += ` WHERE journey = ?`
		args = append(args, name)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r          Run
			success    int
			startedMs  int64
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.Journey, &success, &startedMs, &durationMs,
			&r.CompletedSteps, &r.TotalSteps, &r.Errors); err != nil {
			return nil, fmt.Errorf("failed to read run: %w", err)
		}
		r.Success = success != 0
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the full stored result of one run.
func (s *Store) Get(ctx context.Context, id string) (*journey.Result, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	var res journey.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("failed to decode run result: %w", err)
	}
	return &res, nil
}

// Stats aggregates every stored run of name.
func (s *Store) Stats(ctx context.Context, name string) (Stats, error) {
	st := Stats{Journey: name}
	var (
		passed  sql.NullInt64
		avgMs   sql.NullFloat64
		lastRun sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(success), AVG(duration_ms), MAX(started_at)
		FROM runs WHERE journey = ?`, name).Scan(&st.Runs, &passed, &avgMs, &lastRun)
	if err != nil {
		return st, fmt.Errorf("failed to aggregate runs: %w", err)
	}
	st.Passed = int(passed.Int64)
	st.Failed = st.Runs - st.Passed
	st.AverageDuration = time.Duration(avgMs.Float64 * float64(time.Millisecond))
	if lastRun.Valid {
		st.LastRun = time.UnixMilli(lastRun.Int64).UTC()
	}
	return st, nil
}

// Prune deletes runs of name beyond the newest keep and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, name string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE journey = ? AND id NOT IN (
		SELECT id FROM runs WHERE journey = ? ORDER BY started_at DESC, id LIMIT ?)`, name, name, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
