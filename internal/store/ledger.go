package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DeliveryLedger records which (queue, messageID) pairs have already been
// handled to completion, so a redelivered message short-circuits instead
// of re-running the handler. Adapted from the teacher's session
// check-and-set: an INSERT that fails on a pre-existing primary key means
// "someone already claimed this", not an error.
type DeliveryLedger struct {
	db *sql.DB
}

// NewDeliveryLedger wraps an already-migrated *sql.DB.
func NewDeliveryLedger(db *sql.DB) *DeliveryLedger {
	return &DeliveryLedger{db: db}
}

// MarkDelivered records a successful delivery. It is idempotent: marking
// the same pair twice is not an error.
func (l *DeliveryLedger) MarkDelivered(ctx context.Context, queueName, messageID string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO delivery_ledger (queue_name, message_id, deleted_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (queue_name, message_id) DO NOTHING
	`, queueName, messageID)
	if err != nil {
		return fmt.Errorf("store: mark delivered %s/%s: %w", queueName, messageID, err)
	}
	return nil
}

// AlreadyDelivered reports whether this pair was already marked delivered.
func (l *DeliveryLedger) AlreadyDelivered(ctx context.Context, queueName, messageID string) (bool, error) {
	var exists int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM delivery_ledger WHERE queue_name = $1 AND message_id = $2
	`, queueName, messageID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: already delivered %s/%s: %w", queueName, messageID, err)
	}
	return true, nil
}
