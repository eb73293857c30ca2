// Package geo converts between geographic coordinates and the local
// East-North-Up frame terrain meshes are centered in.
package geo

import (
	"errors"
	"fmt"
	"math"

	vmath "github.com/Faultbox/demterrain/pkg/math"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

// ErrInvalidCoord is returned for latitudes or longitudes out of range.
var ErrInvalidCoord = errors.New("invalid geographic coordinate")

// Coord is a WGS84 position. Alt is meters above sea level.
type Coord struct {
	Lat float64
	Lon float64
	Alt float64
}

// Validate checks that the coordinate lies on the globe.
func (c Coord) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoord, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoord, c.Lon)
	}
	return nil
}

// Bounds is a latitude/longitude box in degrees.
type Bounds struct {
	North, South, West, East float64
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coord {
	return Coord{Lat: (b.North + b.South) / 2, Lon: (b.West + b.East) / 2}
}

// BoundsAround returns the box of side rangeMeters centered on c.
func BoundsAround(c Coord, rangeMeters float64) Bounds {
	half := rangeMeters / 2
	dLat := half / EarthRadius * 180 / math.Pi
	dLon := half / (EarthRadius * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return Bounds{
		North: math.Min(c.Lat+dLat, 90),
		South: math.Max(c.Lat-dLat, -90),
		West:  c.Lon - dLon,
		East:  c.Lon + dLon,
	}
}

// ToLocal flattens p into the ENU frame anchored at ref: x east, y up,
// z north, all in meters. Valid for the few-kilometer extents of a mesh.
func ToLocal(ref, p Coord) vmath.Vec3 {
	lat0 := ref.Lat * math.Pi / 180
	east := (p.Lon - ref.Lon) * math.Pi / 180 * EarthRadius * math.Cos(lat0)
	north := (p.Lat - ref.Lat) * math.Pi / 180 * EarthRadius
	return vmath.Vec3{
		X: float32(east),
		Y: float32(p.Alt - ref.Alt),
		Z: float32(north),
	}
}
