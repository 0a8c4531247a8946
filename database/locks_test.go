package database

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestWithSpatialLockAcquiresAndReleasesInOrder(t *testing.T) {
	it(func() {
		keys := []string{"civicspot.geo.aaa", "civicspot.geo.bbb"}

		mock.ExpectQuery("SELECT GET_LOCK\\(\\?, \\?\\)").
			WithArgs(keys[0], 5).
			WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(1))
		mock.ExpectQuery("SELECT GET_LOCK\\(\\?, \\?\\)").
			WithArgs(keys[1], 5).
			WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(1))
		// Released in reverse acquisition order.
		mock.ExpectQuery("SELECT RELEASE_LOCK\\(\\?\\)").
			WithArgs(keys[1]).
			WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(1))
		mock.ExpectQuery("SELECT RELEASE_LOCK\\(\\?\\)").
			WithArgs(keys[0]).
			WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(1))

		ran := false
		err := d.WithSpatialLock(context.Background(), keys, 5*time.Second, func(ctx context.Context) error {
			ran = true
			return nil
		})
		if err != nil {
			t.Fatalf("WithSpatialLock returned error: %v", err)
		}
		if !ran {
			t.Error("expected fn to run under the lock")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestWithSpatialLockTimeout(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT GET_LOCK\\(\\?, \\?\\)").
			WithArgs("civicspot.geo.aaa", 5).
			WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(0))

		err := d.WithSpatialLock(context.Background(), []string{"civicspot.geo.aaa"}, 5*time.Second,
			func(ctx context.Context) error {
				t.Error("fn must not run when the lock is not acquired")
				return nil
			})
		if !errors.Is(err, ErrLockTimeout) {
			t.Errorf("expected ErrLockTimeout, got %v", err)
		}
	})
}

func TestWithSpatialLockReleasesAcquiredOnPartialFailure(t *testing.T) {
	it(func() {
		keys := []string{"civicspot.geo.aaa", "civicspot.geo.bbb"}

		mock.ExpectQuery("SELECT GET_LOCK\\(\\?, \\?\\)").
			WithArgs(keys[0], 5).
			WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(1))
		mock.ExpectQuery("SELECT GET_LOCK\\(\\?, \\?\\)").
			WithArgs(keys[1], 5).
			WillReturnRows(sqlmock.NewRows([]string{"got"}).AddRow(0))
		// Only the first lock was held, only it is released.
		mock.ExpectQuery("SELECT RELEASE_LOCK\\(\\?\\)").
			WithArgs(keys[0]).
			WillReturnRows(sqlmock.NewRows([]string{"released"}).AddRow(1))

		err := d.WithSpatialLock(context.Background(), keys, 5*time.Second,
			func(ctx context.Context) error { return nil })
		if !errors.Is(err, ErrLockTimeout) {
			t.Errorf("expected ErrLockTimeout, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}
