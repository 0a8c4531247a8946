package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DuplicateRadiusMeters != 50.0 {
		t.Errorf("expected default radius 50, got %f", cfg.DuplicateRadiusMeters)
	}
	if cfg.LockWaitTimeout != 5*time.Second {
		t.Errorf("expected default lock wait 5s, got %s", cfg.LockWaitTimeout)
	}
	if cfg.UploadDir != "" {
		t.Errorf("expected photo persistence disabled by default, got %q", cfg.UploadDir)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("UPLOAD_DIR", "/var/lib/civicspot/uploads")
	t.Setenv("DUPLICATE_RADIUS_METERS", "75.5")
	t.Setenv("SPATIAL_LOCK_TIMEOUT", "10s")
	t.Setenv("SPATIAL_LOCK_RETRIES", "5")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.UploadDir != "/var/lib/civicspot/uploads" {
		t.Errorf("expected upload dir from environment, got %q", cfg.UploadDir)
	}
	if cfg.DuplicateRadiusMeters != 75.5 {
		t.Errorf("expected radius 75.5, got %f", cfg.DuplicateRadiusMeters)
	}
	if cfg.LockWaitTimeout != 10*time.Second {
		t.Errorf("expected lock wait 10s, got %s", cfg.LockWaitTimeout)
	}
	if cfg.LockRetries != 5 {
		t.Errorf("expected 5 lock retries, got %d", cfg.LockRetries)
	}
}

func TestGetDSN(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "reports")

	got := Load().GetDSN()
	want := "app:pw@tcp(db.internal:3307)/reports?parseTime=true&multiStatements=true"
	if got != want {
		t.Errorf("GetDSN mismatch:\n got %s\nwant %s", got, want)
	}
}
