// Package geofence computes great-circle distances and circular zone
// membership for punch locations.
package geofence

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinate is matched with errors.Is for any coordinate failure.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// CoordinateError reports which value of a coordinate is unusable.
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("coordenada inválida: %s=%v", e.Field, e.Value)
}

func (e *CoordinateError) Is(target error) bool { return target == ErrInvalidCoordinate }

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate rejects NaN, infinities and out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return &CoordinateError{Field: "lat", Value: c.Lat}
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || c.Lon < -180 || c.Lon > 180 {
		return &CoordinateError{Field: "lon", Value: c.Lon}
	}
	return nil
}

// Zone is a circular geofence.
type Zone struct {
	Center       Coordinate
	RadiusMeters float64
}

// Verdict is the outcome of evaluating a position against a zone.
type Verdict struct {
	DistanceMeters float64
	Within         bool
}

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return haversine(a, b), nil
}

// haversine is symmetric: swapping a and b only changes the sign of the
// deltas, which are squared.
func haversine(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Within reports distance(p, center) <= radius. The comparison is exact,
// so a zero radius only admits the center itself.
func Within(p Coordinate, z Zone) (bool, error) {
	v, err := Evaluate(p, z)
	return v.Within, err
}

// Evaluate returns the distance to the zone center and the verdict.
func Evaluate(p Coordinate, z Zone) (Verdict, error) {
	if math.IsNaN(z.RadiusMeters) || z.RadiusMeters < 0 {
		return Verdict{}, &CoordinateError{Field: "radius", Value: z.RadiusMeters}
	}
	d, err := DistanceMeters(p, z.Center)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{DistanceMeters: d, Within: d <= z.RadiusMeters}, nil
}

// Offset returns the coordinate reached by travelling meters from origin
// along bearingDeg (0 = north). Used to place fixtures at a known distance.
func Offset(origin Coordinate, meters, bearingDeg float64) Coordinate {
	delta := meters / EarthRadiusMeters
	theta := bearingDeg * math.Pi / 180
	phi1 := origin.Lat * math.Pi / 180
	lambda1 := origin.Lon * math.Pi / 180

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return Coordinate{Lat: phi2 * 180 / math.Pi, Lon: lambda2 * 180 / math.Pi}
}
