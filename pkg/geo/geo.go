// Package geo holds the distance math used for geofencing and discovery.
package geo

import (
	"math"

	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
)

// EarthRadiusMeters is the mean earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

const metersPerDegreeLat = 111320.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects coordinates outside the WGS84 range.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return pkgerrors.Validation(pkgerrors.ReasonInvalidLocation, "location is out of range", map[string]any{
			"lat": p.Lat,
			"lng": p.Lng,
		})
	}
	return nil
}

// Haversine returns the great-circle distance in meters.
func Haversine(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// DistanceMeters is Haversine rounded to the nearest meter.
func DistanceMeters(a, b Point) int {
	return int(math.Round(Haversine(a, b)))
}

// Bounds is an axis-aligned lat/lng box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box that contains every point within radius meters
// of center. It is a prefilter only; callers still apply Haversine.
func BoundingBox(center Point, radius float64) Bounds {
	dLat := radius / metersPerDegreeLat
	cosLat := math.Cos(toRadians(center.Lat))
	dLng := 180.0
	if cosLat > 1e-9 {
		dLng = math.Min(180, radius/(metersPerDegreeLat*cosLat))
	}
	return Bounds{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: math.Max(-180, center.Lng-dLng),
		MaxLng: math.Min(180, center.Lng+dLng),
	}
}

// Offset moves a point north and east by the given meters. Used to build
// fixtures at known distances.
func Offset(p Point, northMeters, eastMeters float64) Point {
	dLat := northMeters / EarthRadiusMeters
	dLng := eastMeters / (EarthRadiusMeters * math.Cos(toRadians(p.Lat)))
	return Point{
		Lat: p.Lat + dLat*180/math.Pi,
		Lng: p.Lng + dLng*180/math.Pi,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
