package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate indicates a latitude or longitude outside its range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoCoordinate is a latitude/longitude pair in degrees. It is the source of
// truth for any named location; Cartesian positions are always derived from it.
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks lat ∈ [-90, 90] and lon ∈ [-180, 180].
func (g GeoCoordinate) Validate() error {
	if math.IsNaN(g.Lat) || g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, g.Lat)
	}
	if math.IsNaN(g.Lon) || g.Lon < -180 || g.Lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, g.Lon)
	}
	return nil
}

// String renders the coordinate the way the selection modal shows it.
func (g GeoCoordinate) String() string {
	return fmt.Sprintf("%.4f, %.4f", g.Lat, g.Lon)
}
