package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-polyline"
)

// Coordinate is a WGS84 point. Immutable once produced.
type Coordinate struct {
	Lat float64
	Lng float64
}

// ParseCoord parses a "lat,lng" string into a Coordinate.
func ParseCoord(input string) (Coordinate, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate: %q", input)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Coordinate{}, fmt.Errorf("invalid lat/lng: %q", input)
	}
	return Coordinate{Lat: lat, Lng: lng}, nil
}

// Valid reports whether both components are finite and within WGS84 range.
func (c Coordinate) Valid() bool {
	return ValidPair(c.Lat, c.Lng)
}

// ValidPair reports whether lat/lng are finite and |lat| <= 90, |lng| <= 180.
func ValidPair(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lng) <= 180
}

// DecodePolyline decodes a Google encoded polyline into coordinates.
func DecodePolyline(encoded string) ([]Coordinate, error) {
	pairs, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	coords := make([]Coordinate, 0, len(pairs))
	for _, p := range pairs {
		coords = append(coords, Coordinate{Lat: p[0], Lng: p[1]})
	}
	return coords, nil
}

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(a, b Coordinate) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := (math.Sin(dLat/2) * math.Sin(dLat/2)) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}
