package enrichment

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"cropcare/internal/external"
	"cropcare/internal/types"
)

// earthRadiusMeters is the mean Earth radius used to convert alert radii
// into angles on the unit sphere.
const earthRadiusMeters = 6371008.8

// alertCap is the spherical cap an alert covers.
func alertCap(a types.RegionalAlert) s2.Cap {
	radius := a.RadiusMeters
	if radius <= 0 {
		radius = external.DefaultAlertRadiusMeters
	}
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Center.Lat, a.Center.Lon))
	return s2.CapFromCenterAngle(center, s1.Angle(radius/earthRadiusMeters))
}

// NearbyAlerts returns the alerts whose circle contains c, preserving
// order, each with its distance from c. The result is non-nil.
func NearbyAlerts(alerts []types.RegionalAlert, c types.Coordinate) []types.RegionalAlert {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon))
	out := make([]types.RegionalAlert, 0, len(alerts))
	for _, a := range alerts {
		if alertCap(a).ContainsPoint(p) {
			a.DistanceMeters = DistanceMeters(c, a.Center)
			out = append(out, a)
		}
	}
	return out
}

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(a, b types.Coordinate) float64 {
	ang := s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon))
	return ang.Radians() * earthRadiusMeters
}
