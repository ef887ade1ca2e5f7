package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pgproxy/internal/ir"
)

// Run is one journaled sync, without its entries.
type Run struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Schema  string `json:"schema"`
	Version string `json:"version"`
	Entries int    `json:"entries"`
}

// FunctionEvent is one journaled entry for a single function.
type FunctionEvent struct {
	RunSeq int64          `json:"run_seq"`
	RunID  string         `json:"run_id"`
	Schema string         `json:"schema"`
	Entry  ir.ReportEntry `json:"entry"`
}

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("sync run not found")

// RecordRun appends a sync report to the journal.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a report whose ID is
// already journaled is silently ignored, entries included.
func (s *Store) RecordRun(ctx context.Context, report ir.SyncReport) error {
	if report.ID == "" {
		return fmt.Errorf("record run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO sync_runs (id, schema_name, pgproxy_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, report.ID, report.Schema, ir.Version)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record run: rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	for i, e := range report.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_entries (run_id, position, function, class, outcome, digest)
			VALUES (?, ?, ?, ?, ?, ?)
		`, report.ID, i, e.Function, string(e.Class), string(e.Outcome), e.Digest)
		if err != nil {
			return fmt.Errorf("record run: entry %q: %w", e.Function, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.seq, r.id, r.schema_name, r.pgproxy_version, COUNT(e.position)
		FROM sync_runs r
		LEFT JOIN sync_entries e ON e.run_id = r.id
		GROUP BY r.seq
		ORDER BY r.seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Seq, &r.ID, &r.Schema, &r.Version, &r.Entries); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunEntries returns the entries of one run in report order.
// Returns ErrRunNotFound for an unknown run id.
func (s *Store) RunEntries(ctx context.Context, runID string) ([]ir.ReportEntry, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sync_runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT function, class, outcome, digest
		FROM sync_entries
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.ReportEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// LoadReport reassembles a journaled run as a SyncReport.
func (s *Store) LoadReport(ctx context.Context, runID string) (ir.SyncReport, error) {
	var report ir.SyncReport
	err := s.db.QueryRowContext(ctx, `
		SELECT id, schema_name FROM sync_runs WHERE id = ?
	`, runID).Scan(&report.ID, &report.Schema)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SyncReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return ir.SyncReport{}, fmt.Errorf("load report: %w", err)
	}

	report.Entries, err = s.RunEntries(ctx, runID)
	if err != nil {
		return ir.SyncReport{}, err
	}
	return report, nil
}

// FunctionHistory returns the journaled entries for one function, newest run
// first, up to limit. A limit of zero or less returns all of them.
func (s *Store) FunctionHistory(ctx context.Context, function string, limit int) ([]FunctionEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.seq, r.id, r.schema_name, e.function, e.class, e.outcome, e.digest
		FROM sync_entries e
		JOIN sync_runs r ON r.id = e.run_id
		WHERE e.function = ?
		ORDER BY r.seq DESC, e.position ASC
		LIMIT ?
	`, function, limit)
	if err != nil {
		return nil, fmt.Errorf("query function history: %w", err)
	}
	defer rows.Close()

	events := []FunctionEvent{}
	for rows.Next() {
		var ev FunctionEvent
		var class, outcome string
		if err := rows.Scan(&ev.RunSeq, &ev.RunID, &ev.Schema,
			&ev.Entry.Function, &class, &outcome, &ev.Entry.Digest); err != nil {
			return nil, fmt.Errorf("scan function history: %w", err)
		}
		ev.Entry.Class = ir.Class(class)
		ev.Entry.Outcome = ir.Outcome(outcome)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate function history: %w", err)
	}
	return events, nil
}

func scanEntry(rows *sql.Rows) (ir.ReportEntry, error) {
	var e ir.ReportEntry
	var class, outcome string
	if err := rows.Scan(&e.Function, &class, &outcome, &e.Digest); err != nil {
		return ir.ReportEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Class = ir.Class(class)
	e.Outcome = ir.Outcome(outcome)
	return e, nil
}
