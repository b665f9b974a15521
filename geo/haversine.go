// Package geo holds the great-circle math used by the proximity searches.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// FromPointers builds a Coordinate from nullable storage columns.
// The second return value is false when either component is missing.
func FromPointers(lat, lon *float64) (Coordinate, bool) {
	if lat == nil || lon == nil {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: *lat, Longitude: *lon}, true
}

// Distance returns the Haversine distance between a and b in kilometres.
func Distance(a, b Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// clamp against float drift for antipodal points
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Round1 rounds a distance to one decimal place.
func Round1(km float64) float64 {
	return math.Round(km*10) / 10
}

// Valid reports whether c is inside the usual latitude/longitude ranges.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
