package dedup

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"civicspot/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// DefaultRadiusMeters is the duplicate radius: two same-category reports
	// within this great-circle distance collapse into one.
	DefaultRadiusMeters = 50.0

	// lockCellLevel is the S2 cell level used for spatial advisory lock keys.
	// Level 13 cells are roughly 1 km across, far wider than the duplicate
	// radius, so a candidate's whole neighborhood maps to very few cells.
	lockCellLevel = 13
)

// Distance returns the great-circle distance in meters between two points
// given in degrees, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// BoundingBox returns a rough lat/lon box around the point that contains
// every location within radiusMeters. One degree of latitude is about 111 km;
// the longitude span widens toward the poles (cosine clamped away from zero).
func BoundingBox(lat, lon, radiusMeters float64) (latMin, latMax, lonMin, lonMax float64) {
	latDelta := radiusMeters / 111000.0
	lonDelta := radiusMeters / (111000.0 * math.Max(math.Cos(lat*math.Pi/180), 0.01))
	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

// ClosestMatch returns the active report of the same category within
// radiusMeters of the candidate point, or nil when there is none. When
// several reports match, the nearest wins; exact distance ties go to the
// earliest-created report.
func ClosestMatch(lat, lon float64, category string, candidates []models.Report, radiusMeters float64) *models.Report {
	type scored struct {
		report   models.Report
		distance float64
	}

	var matching []scored
	for _, r := range candidates {
		if r.Archived || r.Category != category {
			continue
		}
		d := Distance(lat, lon, r.Latitude, r.Longitude)
		if d <= radiusMeters {
			matching = append(matching, scored{report: r, distance: d})
		}
	}
	if len(matching) == 0 {
		return nil
	}

	sort.Slice(matching, func(i, j int) bool {
		if matching[i].distance != matching[j].distance {
			return matching[i].distance < matching[j].distance
		}
		return matching[i].report.CreatedAt.Before(matching[j].report.CreatedAt)
	})

	best := matching[0]
	m := best.report
	return &m
}

// LockKeys returns the advisory lock keys covering the duplicate radius
// around the point. Keys are sorted so concurrent submissions always acquire
// them in the same order.
func LockKeys(lat, lon, radiusMeters float64) []string {
	point := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	angle := s1.Angle(radiusMeters / EarthRadiusMeters)
	region := s2.CapFromCenterAngle(point, angle)

	coverer := s2.RegionCoverer{
		MinLevel: lockCellLevel,
		MaxLevel: lockCellLevel,
		MaxCells: 8,
	}

	covering := coverer.Covering(region)
	keys := make([]string, 0, len(covering))
	for _, cell := range covering {
		keys = append(keys, "civicspot.geo."+cell.ToToken())
	}
	sort.Strings(keys)
	return keys
}
