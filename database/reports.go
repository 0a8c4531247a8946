package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apex/log"

	"civicspot/common"
	"civicspot/dedup"
	"civicspot/models"
)

const reportColumns = `id, user_id, latitude, longitude, category, severity, status,
		upvote_count, ai_generated, archived, photo_url, image_hash, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (*models.Report, error) {
	var r models.Report
	var photoURL, imageHash sql.NullString
	if err := row.Scan(&r.ID, &r.UserID, &r.Latitude, &r.Longitude, &r.Category,
		&r.Severity, &r.Status, &r.UpvoteCount, &r.AIGenerated, &r.Archived,
		&photoURL, &imageHash, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.PhotoURL = photoURL.String
	r.ImageHash = imageHash.String
	return &r, nil
}

// CreateReport persists a new report.
func (d *Database) CreateReport(ctx context.Context, r *models.Report) error {
	result, err := d.db.ExecContext(ctx, `INSERT
		INTO reports (id, user_id, latitude, longitude, category, severity, status,
			upvote_count, ai_generated, archived, photo_url, image_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, FALSE, ?, ?)`,
		r.ID, r.UserID, r.Latitude, r.Longitude, r.Category, r.Severity, r.Status,
		r.AIGenerated, r.PhotoURL, r.ImageHash)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	common.LogResult("CreateReport", result, err, true)
	return nil
}

// GetReport returns a single report by id, or ErrNotFound.
func (d *Database) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return r, nil
}

// GetActiveReportsNear returns non-archived reports of the given category
// inside a rough bounding box around the point. The caller applies the exact
// great-circle filter.
func (d *Database) GetActiveReportsNear(ctx context.Context, lat, lon, radiusMeters float64, category string) ([]models.Report, error) {
	latMin, latMax, lonMin, lonMax := dedup.BoundingBox(lat, lon, radiusMeters)

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		WHERE archived = FALSE AND category = ?
			AND latitude BETWEEN ? AND ?
			AND longitude BETWEEN ? AND ?`,
		category, latMin, latMax, lonMin, lonMax)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// FindUserReportByImageHash returns the caller's active report carrying the
// exact same photo, if any. Used to short-circuit re-submissions of the same
// image before the classifier is consulted.
func (d *Database) FindUserReportByImageHash(ctx context.Context, userID, imageHash string) (*models.Report, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		WHERE user_id = ? AND image_hash = ? AND archived = FALSE
		LIMIT 1`, userID, imageHash)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report by image hash: %w", err)
	}
	return r, nil
}

// ListReports returns reports newest first, optionally filtered by category
// and status. Archived reports are excluded unless includeArchived is set.
func (d *Database) ListReports(ctx context.Context, category, status string, includeArchived bool) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any
	if !includeArchived {
		query += ` AND archived = FALSE`
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// UpdateReportStatus transitions a report to newStatus and appends a status
// history row. Marking a report Fixed also archives it, which removes it
// from duplicate consideration.
func (d *Database) UpdateReportStatus(ctx context.Context, id, newStatus, changedBy string) (*models.Report, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = ?`, id).Scan(&oldStatus)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report status: %w", err)
	}

	archived := newStatus == models.StatusFixed
	if _, err := tx.ExecContext(ctx,
		`UPDATE reports SET status = ?, archived = ?, updated_at = NOW() WHERE id = ?`,
		newStatus, archived, id); err != nil {
		return nil, fmt.Errorf("failed to update report status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO report_status_history (report_id, old_status, new_status, changed_by)
		VALUES (?, ?, ?, ?)`,
		id, oldStatus, newStatus, changedBy); err != nil {
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	log.Infof("Report %s: %s -> %s (by %s)", id, oldStatus, newStatus, changedBy)
	return d.GetReport(ctx, id)
}
