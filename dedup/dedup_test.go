package dedup

import (
	"math"
	"sort"
	"testing"
	"time"

	"civicspot/models"
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(40.0, -111.0, 40.0, -111.0); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := Distance(40.0, -111.0, 40.1, -111.1)
	b := Distance(40.1, -111.1, 40.0, -111.0)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance is not symmetric: %f vs %f", a, b)
	}
}

func TestDistanceKnownSmallSeparation(t *testing.T) {
	// Roughly one meter of latitude plus one meter of longitude at 40N.
	d := Distance(40.0, -111.0, 40.000009, -111.000009)
	if d < 1.0 || d > 1.6 {
		t.Errorf("expected ~1.3m separation, got %f", d)
	}
}

func TestDistanceMonotonicInSeparation(t *testing.T) {
	near := Distance(40.0, -111.0, 40.0001, -111.0)
	far := Distance(40.0, -111.0, 40.001, -111.0)
	if near >= far {
		t.Errorf("expected distance to grow with separation: near=%f far=%f", near, far)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	lat, lon := 40.0, -111.0
	latMin, latMax, lonMin, lonMax := BoundingBox(lat, lon, 50)

	if latMin >= lat || latMax <= lat || lonMin >= lon || lonMax <= lon {
		t.Fatalf("bounding box does not contain center: [%f,%f]x[%f,%f]", latMin, latMax, lonMin, lonMax)
	}

	// A point 50m due north must fall inside the box.
	north := lat + 50.0/111000.0
	if north > latMax {
		t.Errorf("point 50m north (%f) escapes box max %f", north, latMax)
	}
}

func TestBoundingBoxNearPoles(t *testing.T) {
	// The longitude delta blows up near the poles; the clamp keeps it finite.
	_, _, lonMin, lonMax := BoundingBox(89.9999, 0, 50)
	if math.IsInf(lonMin, 0) || math.IsInf(lonMax, 0) || math.IsNaN(lonMin) || math.IsNaN(lonMax) {
		t.Errorf("bounding box degenerate near pole: [%f, %f]", lonMin, lonMax)
	}
}

func report(id string, lat, lon float64, category string, createdAt time.Time) models.Report {
	return models.Report{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Category:  category,
		Status:    models.StatusReported,
		CreatedAt: createdAt,
	}
}

func TestClosestMatchPicksNearest(t *testing.T) {
	now := time.Now()
	candidates := []models.Report{
		report("far", 40.0003, -111.0, "Pothole", now),   // ~33m
		report("near", 40.0001, -111.0, "Pothole", now),  // ~11m
		report("miss", 40.0010, -111.0, "Pothole", now),  // ~111m, outside radius
	}

	m := ClosestMatch(40.0, -111.0, "Pothole", candidates, 50)
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.ID != "near" {
		t.Errorf("expected nearest report, got %s", m.ID)
	}
}

func TestClosestMatchRespectsRadius(t *testing.T) {
	candidates := []models.Report{
		report("outside", 40.001, -111.0, "Pothole", time.Now()), // ~111m
	}
	if m := ClosestMatch(40.0, -111.0, "Pothole", candidates, 50); m != nil {
		t.Errorf("expected no match outside radius, got %s", m.ID)
	}
}

func TestClosestMatchFiltersCategoryAndArchived(t *testing.T) {
	now := time.Now()
	archived := report("archived", 40.0001, -111.0, "Pothole", now)
	archived.Archived = true
	candidates := []models.Report{
		archived,
		report("other-cat", 40.0001, -111.0, "Water Leak", now),
	}
	if m := ClosestMatch(40.0, -111.0, "Pothole", candidates, 50); m != nil {
		t.Errorf("expected no match, got %s", m.ID)
	}
}

func TestClosestMatchTieBreaksOnAge(t *testing.T) {
	older := report("older", 40.0001, -111.0, "Pothole", time.Now().Add(-time.Hour))
	newer := report("newer", 40.0001, -111.0, "Pothole", time.Now())

	m := ClosestMatch(40.0, -111.0, "Pothole", []models.Report{newer, older}, 50)
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.ID != "older" {
		t.Errorf("expected the older report on a distance tie, got %s", m.ID)
	}
}

func TestLockKeysDeterministicAndSorted(t *testing.T) {
	a := LockKeys(40.0, -111.0, 50)
	b := LockKeys(40.0, -111.0, 50)

	if len(a) == 0 {
		t.Fatal("expected at least one lock key")
	}
	if !sort.StringsAreSorted(a) {
		t.Errorf("lock keys are not sorted: %v", a)
	}
	if len(a) != len(b) {
		t.Fatalf("lock keys not deterministic: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("lock keys not deterministic at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestLockKeysOverlapForNearbyPoints(t *testing.T) {
	// Two points a meter apart must share at least one advisory lock key,
	// otherwise concurrent submissions could both pass duplicate detection.
	a := LockKeys(40.0, -111.0, 50)
	b := LockKeys(40.000009, -111.0, 50)

	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	shared := false
	for _, k := range b {
		if set[k] {
			shared = true
			break
		}
	}
	if !shared {
		t.Errorf("nearby points share no lock keys: %v vs %v", a, b)
	}
}
