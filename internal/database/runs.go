package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout sorts lexically in the same order as the times it encodes.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// InsertRun records the start of a run.
func (db *DB) InsertRun(id string, seq uint64, query string, startedAt time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, seq, query, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, int64(seq), query, "searching", formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the terminal state of a run together with the shape of
// its result. buckets is empty for failed runs.
func (db *DB) FinishRun(id, state string, failedStage, errMsg *string, documentCount int, displayed bool, buckets []RunBucket, finishedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE runs SET state = ?, failed_stage = ?, error = ?, document_count = ?,
		bucket_count = ?, displayed = ?, finished_at = ? WHERE id = ?`,
		state, failedStage, errMsg, documentCount, len(buckets), displayed, formatTime(finishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: no such run", id)
	}

	for _, b := range buckets {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO run_buckets (run_id, position, label, article_count) VALUES (?, ?, ?, ?)",
			id, b.Position, b.Label, b.ArticleCount,
		); err != nil {
			return fmt.Errorf("recording bucket %d of run %s: %w", b.Position, id, err)
		}
	}

	return tx.Commit()
}

// FailUnfinishedRuns marks runs left unfinished by a previous process as
// failed. Returns the number of runs updated.
func (db *DB) FailUnfinishedRuns(now time.Time) (int64, error) {
	result, err := db.conn.Exec(
		`UPDATE runs SET state = ?, error = 'interrupted', finished_at = ? WHERE finished_at IS NULL`,
		StateFailed, formatTime(now),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const runColumns = `id, seq, query, state, failed_stage, error, document_count,
	bucket_count, displayed, started_at, finished_at`

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecentRuns returns the most recently started runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, seq DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunBuckets returns the bucket shape recorded for a run, in order.
func (db *DB) GetRunBuckets(runID string) ([]RunBucket, error) {
	rows, err := db.conn.Query(
		"SELECT position, label, article_count FROM run_buckets WHERE run_id = ? ORDER BY position", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []RunBucket
	for rows.Next() {
		var b RunBucket
		if err := rows.Scan(&b.Position, &b.Label, &b.ArticleCount); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// QueryStats returns per-query run counts, most recently run first.
func (db *DB) QueryStats() ([]QueryStat, error) {
	rows, err := db.conn.Query(
		`SELECT query, COUNT(*), SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), MAX(started_at)
		FROM runs GROUP BY query ORDER BY MAX(started_at) DESC`, StateReady,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []QueryStat
	for rows.Next() {
		var (
			s    QueryStat
			last string
		)
		if err := rows.Scan(&s.Query, &s.Runs, &s.Succeeded, &last); err != nil {
			return nil, err
		}
		if s.LastRunAt, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("query %q: %w", s.Query, err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetStats returns aggregate journal statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.TotalRuns},
		{"SELECT COUNT(*) FROM runs WHERE state = 'ready'", &s.Succeeded},
		{"SELECT COUNT(*) FROM runs WHERE state = 'failed'", &s.Failed},
		{"SELECT COUNT(*) FROM runs WHERE finished_at IS NULL", &s.Unfinished},
		{"SELECT COUNT(DISTINCT query) FROM runs", &s.Queries},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished *string
	)
	if err := row.Scan(&r.ID, &r.Seq, &r.Query, &r.State, &r.FailedStage, &r.Error,
		&r.DocumentCount, &r.BucketCount, &r.Displayed, &started, &finished); err != nil {
		return nil, err
	}

	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if finished != nil {
		t, err := parseTime(*finished)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}
