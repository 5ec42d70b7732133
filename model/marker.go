package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMarker indicates a marker record failed validation.
	ErrInvalidMarker = errors.New("invalid marker")
	// ErrDuplicateMarker indicates two records share a name.
	ErrDuplicateMarker = errors.New("duplicate marker")
)

// MarkerRecord is one entry of the static point-of-interest list supplied at
// startup. Name doubles as the marker ID for the whole session.
type MarkerRecord struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Location returns the record's geographic coordinate.
func (r MarkerRecord) Location() GeoCoordinate {
	return GeoCoordinate{Lat: r.Lat, Lon: r.Lon}
}

// Validate checks a single record.
func (r MarkerRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMarker)
	}
	if err := r.Location().Validate(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidMarker, r.Name, err)
	}
	return nil
}

// ValidateRecords checks every record and enforces name uniqueness.
func ValidateRecords(records []MarkerRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateMarker, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}
