package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"civicspot/models"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
	d    *Database
)

func setUp() {
	db, mock, _ = sqlmock.New()
	d = New(db)
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var reportColumnNames = []string{
	"id", "user_id", "latitude", "longitude", "category", "severity", "status",
	"upvote_count", "ai_generated", "archived", "photo_url", "image_hash",
	"created_at", "updated_at",
}

func addReportRow(rows *sqlmock.Rows, id string, lat, lon float64, category, status string, archived bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "user-1", lat, lon, category, 5, status, 0, false, archived,
		"", "", now, now)
}

func TestCreateReport(t *testing.T) {
	it(func() {
		r := &models.Report{
			ID:        "11111111-1111-1111-1111-111111111111",
			UserID:    "user-1",
			Latitude:  40.0,
			Longitude: -111.0,
			Category:  "Pothole",
			Severity:  7,
			Status:    models.StatusReported,
			ImageHash: "abc123",
		}

		mock.ExpectExec("INSERT\\s+INTO reports").
			WithArgs(r.ID, r.UserID, r.Latitude, r.Longitude, r.Category, r.Severity,
				r.Status, r.AIGenerated, r.PhotoURL, r.ImageHash).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := d.CreateReport(context.Background(), r); err != nil {
			t.Errorf("CreateReport returned error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestGetReportNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = \\?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := d.GetReport(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetActiveReportsNear(t *testing.T) {
	it(func() {
		rows := sqlmock.NewRows(reportColumnNames)
		addReportRow(rows, "r1", 40.0001, -111.0, "Pothole", models.StatusReported, false)
		addReportRow(rows, "r2", 40.0002, -111.0, "Pothole", models.StatusInProgress, false)

		mock.ExpectQuery("SELECT (.+) FROM reports\\s+WHERE archived = FALSE AND category = \\?").
			WillReturnRows(rows)

		reports, err := d.GetActiveReportsNear(context.Background(), 40.0, -111.0, 50, "Pothole")
		if err != nil {
			t.Fatalf("GetActiveReportsNear returned error: %v", err)
		}
		if len(reports) != 2 {
			t.Errorf("expected 2 reports, got %d", len(reports))
		}
	})
}

func TestFindUserReportByImageHashAbsent(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM reports\\s+WHERE user_id = \\? AND image_hash = \\?").
			WithArgs("user-1", "deadbeef").
			WillReturnError(sql.ErrNoRows)

		r, err := d.FindUserReportByImageHash(context.Background(), "user-1", "deadbeef")
		if err != nil {
			t.Errorf("expected nil error for absent hash, got %v", err)
		}
		if r != nil {
			t.Errorf("expected nil report for absent hash, got %+v", r)
		}
	})
}

func TestListReportsFilters(t *testing.T) {
	it(func() {
		rows := sqlmock.NewRows(reportColumnNames)
		addReportRow(rows, "r1", 40.0, -111.0, "Pothole", models.StatusReported, false)

		mock.ExpectQuery("SELECT (.+) FROM reports WHERE 1=1 AND archived = FALSE AND category = \\? AND status = \\?").
			WithArgs("Pothole", models.StatusReported).
			WillReturnRows(rows)

		reports, err := d.ListReports(context.Background(), "Pothole", models.StatusReported, false)
		if err != nil {
			t.Fatalf("ListReports returned error: %v", err)
		}
		if len(reports) != 1 {
			t.Errorf("expected 1 report, got %d", len(reports))
		}
	})
}

func TestUpdateReportStatusArchivesFixed(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT status FROM reports WHERE id = \\?").
			WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StatusInProgress))
		mock.ExpectExec("UPDATE reports SET status = \\?, archived = \\?").
			WithArgs(models.StatusFixed, true, "r1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO report_status_history").
			WithArgs("r1", models.StatusInProgress, models.StatusFixed, "admin-1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rows := sqlmock.NewRows(reportColumnNames)
		addReportRow(rows, "r1", 40.0, -111.0, "Pothole", models.StatusFixed, true)
		mock.ExpectQuery("SELECT (.+) FROM reports WHERE id = \\?").
			WithArgs("r1").
			WillReturnRows(rows)

		report, err := d.UpdateReportStatus(context.Background(), "r1", models.StatusFixed, "admin-1")
		if err != nil {
			t.Fatalf("UpdateReportStatus returned error: %v", err)
		}
		if !report.Archived {
			t.Error("expected report marked Fixed to be archived")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestUpdateReportStatusNotFound(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT status FROM reports WHERE id = \\?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := d.UpdateReportStatus(context.Background(), "missing", models.StatusFixed, "admin-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
