package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Processing outcomes recorded per email.
const (
	OutcomeCreated    = "created"
	OutcomeUpdated    = "updated"
	OutcomeSkipped    = "skipped"
	OutcomeIrrelevant = "irrelevant"
	OutcomeFailed     = "failed"
)

// ProcessedEmail records that a message has been seen by the sync
// pipeline, so repeated syncs never reparse or double-apply it.
type ProcessedEmail struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	EmailID     string    `json:"email_id"`
	Outcome     string    `json:"outcome"`
	ShipmentID  *int64    `json:"shipment_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ProcessedEmailStore persists per-email processing state.
type ProcessedEmailStore struct {
	db *sql.DB
}

// IsProcessed reports whether the email has already been handled for this
// user. Failed outcomes do not count: those are worth retrying.
func (s *ProcessedEmailStore) IsProcessed(ctx context.Context, userID, emailID string) (bool, error) {
	var outcome string
	err := s.db.QueryRowContext(ctx,
		"SELECT outcome FROM processed_emails WHERE user_id = ? AND email_id = ?",
		userID, emailID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking processed email: %w", err)
	}
	return outcome != OutcomeFailed, nil
}

// Mark records the outcome for an email, replacing any earlier record so a
// retried failure can be upgraded.
func (s *ProcessedEmailStore) Mark(ctx context.Context, userID, emailID, outcome string, shipmentID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_emails (user_id, email_id, outcome, shipment_id, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, email_id) DO UPDATE SET
			outcome = excluded.outcome,
			shipment_id = excluded.shipment_id,
			processed_at = excluded.processed_at`,
		userID, emailID, outcome, shipmentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking processed email: %w", err)
	}
	return nil
}

// PurgeOlderThan drops processing records older than the cutoff. The
// table only needs to cover the mailbox search window.
func (s *ProcessedEmailStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM processed_emails WHERE processed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging processed emails: %w", err)
	}
	return res.RowsAffected()
}
