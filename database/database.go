package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apex/log"

	"civicspot/common"
	"civicspot/config"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// Database handles all server-side storage operations.
type Database struct {
	db *sql.DB
}

// Connect creates a database handle using the configured DSN and waits for
// the server to come up.
func Connect(cfg *config.Config) (*Database, error) {
	db, err := common.Connect(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	log.Infof("Database connected to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return &Database{db: db}, nil
}

// New wraps an existing connection. Used by tests.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureTables creates the report, upvote and status history tables if they
// do not exist.
func (d *Database) EnsureTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id CHAR(36) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			category VARCHAR(64) NOT NULL DEFAULT 'Other',
			severity TINYINT NOT NULL DEFAULT 5,
			status ENUM('Reported', 'In Progress', 'Fixed') NOT NULL DEFAULT 'Reported',
			upvote_count INT NOT NULL DEFAULT 0,
			ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			photo_url VARCHAR(255),
			image_hash CHAR(64),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			INDEX lat_lon_index (latitude, longitude),
			INDEX category_index (category),
			INDEX status_index (status),
			INDEX image_hash_index (image_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS upvotes (
			id CHAR(36) NOT NULL,
			report_id CHAR(36) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY report_user_unique (report_id, user_id),
			FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS report_status_history (
			seq INT NOT NULL AUTO_INCREMENT,
			report_id CHAR(36) NOT NULL,
			old_status VARCHAR(32) NOT NULL,
			new_status VARCHAR(32) NOT NULL,
			changed_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (seq),
			INDEX report_id_index (report_id),
			FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure tables: %w", err)
		}
	}

	log.Info("Report tables ensured")
	return nil
}
