// core/marker_loader.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/globe-poi/model"
)

// markerFileJSON is the wrapped form; a bare array is accepted as well.
type markerFileJSON struct {
	Markers []markerJSON `json:"markers"`
}

type markerJSON struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// LoadMarkers decodes a marker list from r. The payload is either a JSON
// array of {name, lat, lon} objects or an object with a "markers" array.
// Every record is validated and names must be unique.
func LoadMarkers(r io.Reader) ([]model.MarkerRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadMarkers: read failed: %w", err)
	}

	var items []markerJSON
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped markerFileJSON
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("LoadMarkers: decode failed: %w", err)
		}
		items = wrapped.Markers
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("LoadMarkers: decode failed: %w", err)
	}

	records := make([]model.MarkerRecord, 0, len(items))
	for i, it := range items {
		if it.Lat == nil || it.Lon == nil {
			return nil, fmt.Errorf("LoadMarkers: entry %d (%q): %w: lat and lon are required", i, it.Name, model.ErrInvalidMarker)
		}
		records = append(records, model.MarkerRecord{Name: it.Name, Lat: *it.Lat, Lon: *it.Lon})
	}

	if err := model.ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("LoadMarkers: %w", err)
	}
	return records, nil
}
