/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sqlitestore persists gateway actions in a SQLite database so
// pending approvals survive restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/repopilot/agents/gateway"
	"github.com/chainguard-dev/clog"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
`

// Store is a gateway.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ gateway.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	clog.FromContext(ctx).With("path", path).Debug("Opened action store")
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, a *gateway.Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO actions (id, type, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(a.Status), string(data), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting action %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*gateway.Action, error) {
	return get(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, id string) (*gateway.Action, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM actions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading action %s: %w", id, err)
	}
	return decode(data)
}

func decode(data string) (*gateway.Action, error) {
	var a gateway.Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decoding action: %w", err)
	}
	return &a, nil
}

func (s *Store) List(ctx context.Context, statuses ...gateway.Status) ([]*gateway.Action, error) {
	query := `SELECT data FROM actions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var out []*gateway.Action
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		a, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Transition(ctx context.Context, id string, from, to gateway.Status, update func(*gateway.Action)) (*gateway.Action, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, fmt.Errorf("%w: %s is %s, not %s", gateway.ErrStatusConflict, id, a.Status, from)
	}
	if update != nil {
		update(a)
	}
	a.Status = to

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding action: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE actions SET status = ?, data = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), string(data), a.UpdatedAt.UTC(), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("updating action %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("updating action %s: %w", id, err)
	} else if n != 1 {
		return nil, fmt.Errorf("%w: %s", gateway.ErrStatusConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition of %s: %w", id, err)
	}
	return a, nil
}
