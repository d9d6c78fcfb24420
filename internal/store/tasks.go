// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// startedLayout is fixed-width so started_at sorts as text.
const startedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TaskSummary is one row of the answer history.
type TaskSummary struct {
	ID        string           `json:"id" yaml:"id"`
	Query     string           `json:"query" yaml:"query"`
	Status    types.TaskStatus `json:"status" yaml:"status"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Sections  int              `json:"sections" yaml:"sections"`
	CostUSD   float64          `json:"cost_usd" yaml:"cost_usd"`
	StartedAt time.Time        `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration    `json:"elapsed" yaml:"elapsed"`
}

// HistoryOptions filters ListResults.
type HistoryOptions struct {
	// Contains keeps answers whose question contains this text,
	// case-insensitively.
	Contains string

	Status types.TaskStatus

	// Limit caps the number of rows. Zero means 20.
	Limit int
}

// SaveResult stores a finished answer, replacing an earlier save of the
// same task.
func (s *Store) SaveResult(ctx context.Context, r *types.TaskResult) error {
	if r.TaskID == "" {
		return fmt.Errorf("saving result: empty task id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, query, status, error, sections, cost_usd, started_at, elapsed_ms, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			query=excluded.query, status=excluded.status, error=excluded.error,
			sections=excluded.sections, cost_usd=excluded.cost_usd,
			started_at=excluded.started_at, elapsed_ms=excluded.elapsed_ms, result=excluded.result`,
		r.TaskID, r.Query.Original, string(r.Status), r.Error, len(r.Sections), r.Cost.TotalCostUSD,
		r.StartedAt.UTC().Format(startedLayout), r.Elapsed.Milliseconds(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("saving result %s: %w", r.TaskID, err)
	}
	return nil
}

// ListResults returns saved answers, newest first.
func (s *Store) ListResults(ctx context.Context, opts HistoryOptions) ([]TaskSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT id, query, status, error, sections, cost_usd, started_at, elapsed_ms
		FROM tasks WHERE 1=1`)
	if opts.Contains != "" {
		qb.WriteString(` AND lower(query) LIKE ?`)
		args = append(args, "%"+strings.ToLower(opts.Contains)+"%")
	}
	if opts.Status != "" {
		qb.WriteString(` AND status = ?`)
		args = append(args, string(opts.Status))
	}
	qb.WriteString(` ORDER BY started_at DESC, rowid DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []TaskSummary
	for rows.Next() {
		var (
			ts        TaskSummary
			status    string
			errText   sql.NullString
			startedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&ts.ID, &ts.Query, &status, &errText, &ts.Sections, &ts.CostUSD, &startedAt, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		ts.Status = types.TaskStatus(status)
		ts.Error = errText.String
		ts.StartedAt, _ = time.Parse(startedLayout, startedAt)
		ts.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, ts)
	}
	return out, rows.Err()
}

// LoadResult returns the saved answer whose task ID is id or starts with
// id. An ambiguous prefix is an error.
func (s *Store) LoadResult(ctx context.Context, id string) (*types.TaskResult, error) {
	if id == "" {
		return nil, fmt.Errorf("loading result: empty id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, result FROM tasks WHERE id = ? OR substr(id, 1, ?) = ?
		 ORDER BY id = ? DESC LIMIT 2`,
		id, len(id), id, id)
	if err != nil {
		return nil, fmt.Errorf("querying result: %w", err)
	}
	defer rows.Close()

	var matches []string
	var raw string
	for rows.Next() {
		var rowID, rowRaw string
		if err := rows.Scan(&rowID, &rowRaw); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if rowID == id {
			matches, raw = []string{rowID}, rowRaw
			break
		}
		matches = append(matches, rowID)
		raw = rowRaw
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("result id %q is ambiguous", id)
	}

	var r types.TaskResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", matches[0], err)
	}
	return &r, nil
}

// DeleteResult removes a saved answer.
func (s *Store) DeleteResult(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting result %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return nil
}
