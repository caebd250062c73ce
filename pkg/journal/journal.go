// Package journal records every skill execution in a local SQLite database.
// The journal feeds usage statistics (run counts, success rate, last-used
// timestamps) back into skill listings, and keeps enough failure context to
// inspect a misbehaving skill after the fact.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	skill_name    TEXT NOT NULL,
	version       INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL,
	isolation     TEXT NOT NULL DEFAULT '',
	executed_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_skill
	ON executions(skill_name, executed_at);
`

// Entry is one recorded execution.
type Entry struct {
	ID           string    `db:"id"`
	SkillName    string    `db:"skill_name"`
	Version      int       `db:"version"`
	Success      bool      `db:"success"`
	ErrorKind    string    `db:"error_kind"`
	ErrorMessage string    `db:"error_message"`
	DurationMS   int64     `db:"duration_ms"`
	Isolation    string    `db:"isolation"`
	ExecutedAt   time.Time `db:"executed_at"`
}

// UsageStats summarizes a skill's execution history.
type UsageStats struct {
	SkillName     string
	TotalRuns     int
	Successes     int
	Failures      int
	SuccessRate   float64
	AvgDurationMS float64
	LastUsed      time.Time
}

// Journal is the execution log. Safe for concurrent use.
type Journal struct {
	db *sqlx.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal database")
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent recording.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize journal schema")
	}
	return &Journal{db: db}, nil
}

// Record appends one execution result.
func (j *Journal) Record(ctx context.Context, version int, result *skilltypes.ExecutionResult) error {
	entry := Entry{
		ID:         result.ID,
		SkillName:  result.SkillName,
		Version:    version,
		Success:    result.Success,
		DurationMS: result.Duration.Milliseconds(),
		Isolation:  result.Isolation,
		ExecutedAt: time.Now().UTC(),
	}
	if result.Error != nil {
		entry.ErrorKind = string(result.Error.Kind)
		entry.ErrorMessage = result.Error.Message
	}

	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO executions (id, skill_name, version, success, error_kind, error_message, duration_ms, isolation, executed_at)
		VALUES (:id, :skill_name, :version, :success, :error_kind, :error_message, :duration_ms, :isolation, :executed_at)`,
		entry)
	return errors.Wrap(err, "failed to record execution")
}

// Stats aggregates the history of one skill. A skill with no recorded
// executions yields zero-valued stats, not an error.
func (j *Journal) Stats(ctx context.Context, name string) (*UsageStats, error) {
	row := j.db.QueryRowxContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(MAX(executed_at), '')
		FROM executions WHERE skill_name = ?`, name)

	var total, successes int
	var avgDuration float64
	var lastUsed sql.NullString
	if err := row.Scan(&total, &successes, &avgDuration, &lastUsed); err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate stats for skill %q", name)
	}

	stats := &UsageStats{
		SkillName:     name,
		TotalRuns:     total,
		Successes:     successes,
		Failures:      total - successes,
		AvgDurationMS: avgDuration,
	}
	if total > 0 {
		stats.SuccessRate = float64(successes) / float64(total)
	}
	if lastUsed.Valid && lastUsed.String != "" {
		if t, err := parseTimestamp(lastUsed.String); err == nil {
			stats.LastUsed = t
		}
	}
	return stats, nil
}

// History returns the most recent executions of a skill, newest first.
func (j *Journal) History(ctx context.Context, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries, `
		SELECT id, skill_name, version, success, error_kind, error_message, duration_ms, isolation, executed_at
		FROM executions WHERE skill_name = ?
		ORDER BY executed_at DESC, rowid DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load history for skill %q", name)
	}
	return entries, nil
}

// Prune deletes entries for skills that no longer exist.
func (j *Journal) Prune(ctx context.Context, name string) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM executions WHERE skill_name = ?`, name)
	return errors.Wrapf(err, "failed to prune journal entries for skill %q", name)
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999 -0700 MST", "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}
