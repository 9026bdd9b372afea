// Package connstore persists the WebSocket connection-to-user binding
// (spec.md §6 "connection store" collaborator) so GetConnections survives
// across process instances, not just within one wsengine.Engine. The
// schema and driver-switch pattern follow the teacher's store package: a
// thin *sql.DB wrapper selected by config, Postgres in production and
// SQLite for local/dev.
package connstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Store binds/unbinds WebSocket connection IDs to user IDs and answers
// lookups in both directions.
type Store struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB. Callers choose the driver (pgx or
// modernc.org/sqlite) and run migrations before constructing a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Bind records that connectionID belongs to userID.
func (s *Store) Bind(ctx context.Context, connectionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (connection_id, user_id, connected_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (connection_id) DO UPDATE SET user_id = excluded.user_id
	`, connectionID, userID)
	if err != nil {
		return fmt.Errorf("connstore: bind %s: %w", connectionID, err)
	}
	return nil
}

// Unbind removes a connection, e.g. on disconnect.
func (s *Store) Unbind(ctx context.Context, connectionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = $1`, connectionID)
	if err != nil {
		return fmt.Errorf("connstore: unbind %s: %w", connectionID, err)
	}
	return nil
}

// ResolveUser returns the user ID bound to connectionID, or "" if unbound.
func (s *Store) ResolveUser(ctx context.Context, connectionID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM connections WHERE connection_id = $1`, connectionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("connstore: resolve %s: %w", connectionID, err)
	}
	return userID, nil
}

// ConnectionsFor implements runtimectx.ConnectionLookup.
func (s *Store) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT connection_id FROM connections WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("connstore: connections for %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
