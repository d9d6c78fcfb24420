// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// GetMany returns the cached metadata for ids. Missing, expired, and
// unreadable entries are absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error) {
	out := make(map[string]types.PaperMetadata)
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metadata, fetched_at FROM papers WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw, fetched string
		if err := rows.Scan(&id, &raw, &fetched); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		if s.expired(fetched) {
			continue
		}
		var m types.PaperMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out[id] = m
	}
	return out, rows.Err()
}

func (s *Store) expired(fetched string) bool {
	if s.ttl <= 0 {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return true
	}
	return s.now().Sub(t) > s.ttl
}

// PutMany upserts papers in one transaction.
func (s *Store) PutMany(ctx context.Context, papers []types.PaperMetadata) error {
	if len(papers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (id, title, year, metadata, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, year=excluded.year,
			metadata=excluded.metadata, fetched_at=excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	fetched := s.now().UTC().Format(time.RFC3339Nano)
	for _, p := range papers {
		if p.DocID == "" {
			continue
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding paper %s: %w", p.DocID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.DocID, p.Title, p.Year, string(raw), fetched); err != nil {
			return fmt.Errorf("upserting paper %s: %w", p.DocID, err)
		}
	}
	return tx.Commit()
}
