// Package journal persists one row per dispatched tool call so operators can
// audit traffic and the usage archiver can build periodic reports. Recording
// is strictly best effort: a journal outage degrades reporting, never calls.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store uses. Kept narrow so tests can
// substitute pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Record is one journaled call.
type Record struct {
	CallID     string
	Adapter    string
	Tool       string
	Action     string
	Category   string
	Caller     string
	Outcome    string
	Error      string
	DurationMS int64
	ReceivedAt time.Time
}

// Usage is one aggregated (tool, action, outcome) line for a reporting window.
type Usage struct {
	Tool    string `json:"tool"`
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Calls   int64  `json:"calls"`
	TotalMS int64  `json:"total_ms"`
}

// Store writes and aggregates call records in Postgres.
type Store struct {
	db  DB
	log *slog.Logger
}

func NewStore(db DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// ──────────────────────────────────────────────────────────────────────────────
// Schema
// ──────────────────────────────────────────────────────────────────────────────

// EnsureSchema creates the journal tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS call_records (
			call_id     TEXT        NOT NULL,
			adapter     TEXT        NOT NULL,
			tool        TEXT        NOT NULL,
			action      TEXT        NOT NULL,
			category    TEXT        NOT NULL DEFAULT '',
			caller      TEXT        NOT NULL DEFAULT '',
			outcome     TEXT        NOT NULL,
			error       TEXT        NOT NULL DEFAULT '',
			duration_ms BIGINT      NOT NULL DEFAULT 0,
			received_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("journal.EnsureSchema call_records: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_call_records_adapter_time
		ON call_records (adapter, received_at)`)
	if err != nil {
		return fmt.Errorf("journal.EnsureSchema index: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_checkpoints (
			adapter     TEXT        PRIMARY KEY,
			archived_to TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("journal.EnsureSchema usage_checkpoints: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Write path
// ──────────────────────────────────────────────────────────────────────────────

// Record inserts one call record. Failures are logged and swallowed; the
// caller's request already completed and must not be failed retroactively.
func (s *Store) Record(ctx context.Context, rec Record) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO call_records (
			call_id, adapter, tool, action, category,
			caller, outcome, error, duration_ms, received_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.CallID, rec.Adapter, rec.Tool, rec.Action, rec.Category,
		rec.Caller, rec.Outcome, rec.Error, rec.DurationMS, rec.ReceivedAt,
	)
	if err != nil {
		s.log.Warn("failed to journal call", "call_id", rec.CallID, "error", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Read path
// ──────────────────────────────────────────────────────────────────────────────

// Adapters lists every adapter that has journaled at least one call.
func (s *Store) Adapters(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT adapter FROM call_records ORDER BY adapter`)
	if err != nil {
		return nil, fmt.Errorf("journal.Adapters: %w", err)
	}
	defer rows.Close()

	var adapters []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("journal.Adapters scan: %w", err)
		}
		adapters = append(adapters, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal.Adapters iteration: %w", err)
	}
	return adapters, nil
}

// UsageSince aggregates an adapter's calls recorded strictly after since,
// grouped by (tool, action, outcome). The returned time is the latest
// received_at covered by the aggregation, for checkpoint advancement.
func (s *Store) UsageSince(ctx context.Context, adapter string, since time.Time) ([]Usage, time.Time, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tool, action, outcome,
		       COUNT(*), COALESCE(SUM(duration_ms), 0), MAX(received_at)
		FROM call_records
		WHERE adapter = $1 AND received_at > $2
		GROUP BY tool, action, outcome
		ORDER BY tool, action, outcome`, adapter, since)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("journal.UsageSince: %w", err)
	}
	defer rows.Close()

	var (
		lines  []Usage
		latest time.Time
	)
	for rows.Next() {
		var u Usage
		var groupLatest time.Time
		if err := rows.Scan(&u.Tool, &u.Action, &u.Outcome, &u.Calls, &u.TotalMS, &groupLatest); err != nil {
			return nil, time.Time{}, fmt.Errorf("journal.UsageSince scan: %w", err)
		}
		if groupLatest.After(latest) {
			latest = groupLatest
		}
		lines = append(lines, u)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("journal.UsageSince iteration: %w", err)
	}
	return lines, latest, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────────────────────────────────

// Checkpoint returns how far an adapter's usage has been archived. A missing
// row means never archived and yields the zero time.
func (s *Store) Checkpoint(ctx context.Context, adapter string) (time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT archived_to FROM usage_checkpoints WHERE adapter = $1`, adapter)

	var ts time.Time
	err := row.Scan(&ts)
	if err == pgx.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("journal.Checkpoint: %w", err)
	}
	return ts, nil
}

// AdvanceCheckpoint moves an adapter's archive checkpoint forward.
func (s *Store) AdvanceCheckpoint(ctx context.Context, adapter string, ts time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_checkpoints (adapter, archived_to)
		VALUES ($1, $2)
		ON CONFLICT (adapter) DO UPDATE SET archived_to = EXCLUDED.archived_to`,
		adapter, ts)
	if err != nil {
		return fmt.Errorf("journal.AdvanceCheckpoint: %w", err)
	}
	return nil
}
