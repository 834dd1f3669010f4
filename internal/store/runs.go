package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/logstat/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: run not found")

// runChildTables hold per-run rows keyed by run_id.
var runChildTables = []string{"run_process_counts", "run_hostname_counts", "run_keywords", "entries"}

const runColumns = `id, source, digest, input_bytes, started_at, finished_at, total_entries`

// SaveRun stores the run metadata and its statistics in a single transaction.
func (s *Store) SaveRun(run model.Run, stats *model.LogStats) error {
	if stats == nil {
		return fmt.Errorf("store: nil stats for run %s", run.ID)
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`, most_frequent_process, most_frequent_hostname)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Digest, run.Bytes,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), int64(stats.TotalEntries),
		stats.MostFrequentProcess, stats.MostFrequentHostname,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertCounts(ctx, tx, "run_process_counts", "process", run.ID, stats.ByProcess); err != nil {
		return err
	}
	if err := insertCounts(ctx, tx, "run_hostname_counts", "hostname", run.ID, stats.ByHostname); err != nil {
		return err
	}

	kwStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_keywords (run_id, ordinal, keyword) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer kwStmt.Close()
	for i, kw := range stats.TopKeywords {
		if _, err := kwStmt.ExecContext(ctx, run.ID, i, kw); err != nil {
			return fmt.Errorf("insert keyword: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// insertCounts writes one frequency table. Table and column names are
// constants chosen by the caller.
func insertCounts(ctx context.Context, tx *sql.Tx, table, column, runID string, counts map[string]uint32) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (run_id, %s, occurrences) VALUES (?, ?, ?)`, table, column))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for k, n := range counts {
		if _, err := stmt.ExecContext(ctx, runID, k, int64(n)); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

// GetRun returns the metadata of one run.
func (s *Store) GetRun(id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	return scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// RunByDigest returns the most recent run whose input hashed to digest.
func (s *Store) RunByDigest(digest string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	return scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE digest = ? ORDER BY finished_at DESC, id LIMIT 1`, digest))
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(limit int) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]model.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			log.Printf("store: scan error (ListRuns): %v", err)
			continue
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		r                 model.Run
		started, finished int64
		total             int64
	)
	err := row.Scan(&r.ID, &r.Source, &r.Digest, &r.Bytes, &started, &finished, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	r.TotalEntries = int(total)
	return &r, nil
}

// GetRunStats rebuilds the LogStats stored for a run.
func (s *Store) GetRunStats(id string) (*model.LogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	stats := &model.LogStats{TopKeywords: make([]string, 0)}
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT total_entries, most_frequent_process, most_frequent_hostname FROM runs WHERE id = ?`, id,
	).Scan(&total, &stats.MostFrequentProcess, &stats.MostFrequentHostname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stats.TotalEntries = int(total)

	if stats.ByProcess, err = s.readCounts(ctx, "run_process_counts", "process", id); err != nil {
		return nil, err
	}
	if stats.ByHostname, err = s.readCounts(ctx, "run_hostname_counts", "hostname", id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM run_keywords WHERE run_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		stats.TopKeywords = append(stats.TopKeywords, kw)
	}
	return stats, rows.Err()
}

func (s *Store) readCounts(ctx context.Context, table, column, runID string) (map[string]uint32, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, occurrences FROM %s WHERE run_id = ?`, column, table), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]uint32)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = uint32(n)
	}
	return counts, rows.Err()
}

// DeleteRun removes a run and every row that belongs to it.
func (s *Store) DeleteRun(id string) error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.deleteWhere(ctx, `run_id = ?`, `id = ?`, id)
	return err
}

// DeleteBefore removes runs that finished before cutoff and returns how many
// runs were deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(ctx,
		`run_id IN (SELECT id FROM runs WHERE finished_at < ?)`,
		`finished_at < ?`,
		cutoff.UnixMilli())
}

// deleteWhere deletes child rows matching childCond and runs matching
// runCond in one transaction. Both are constant fragments taking arg.
// A run that failed before SaveRun has entries but no runs row.
func (s *Store) deleteWhere(ctx context.Context, childCond, runCond string, arg any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for _, table := range runChildTables {
		q := fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, childCond)
		if _, err := tx.ExecContext(ctx, q, arg); err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE `+runCond, arg)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

// TotalRunCount returns the number of stored runs.
func (s *Store) TotalRunCount() (int64, error) {
	return s.count(`SELECT COUNT(*) FROM runs`)
}

// TotalEntryCount returns the number of stored entries across all runs.
func (s *Store) TotalEntryCount() (int64, error) {
	return s.count(`SELECT COUNT(*) FROM entries`)
}

func (s *Store) count(query string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}
