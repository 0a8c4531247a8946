package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"civicspot/models"
)

// Upvote records one user's endorsement of a report. The insert is keyed by
// the (report_id, user_id) unique constraint: a repeat call affects zero
// rows and leaves the count untouched, so retries after ambiguous timeouts
// are safe.
func (d *Database) Upvote(ctx context.Context, reportID, userID string) (*models.UpvoteResult, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO upvotes (id, report_id, user_id) VALUES (?, ?, ?)`,
		uuid.NewString(), reportID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert upvote: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get upvote insert status: %w", err)
	}
	inserted := rows == 1

	if inserted {
		// The count column is derived from upvote rows; it only moves when
		// a row is actually inserted.
		if _, err := tx.ExecContext(ctx,
			`UPDATE reports SET upvote_count = upvote_count + 1, updated_at = NOW() WHERE id = ?`,
			reportID); err != nil {
			return nil, fmt.Errorf("failed to increment upvote count: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT upvote_count FROM reports WHERE id = ?`, reportID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to read upvote count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upvote: %w", err)
	}

	return &models.UpvoteResult{
		ReportID:       reportID,
		UpvoteCount:    count,
		AlreadyUpvoted: !inserted,
	}, nil
}
