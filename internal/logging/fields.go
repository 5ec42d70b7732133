package logging

import (
	"log/slog"
	"time"
)

// Field is one key/value pair attached to a log record.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field          { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }

// Coordinate groups a latitude/longitude pair under key, e.g.
// point.lat=48.8566 point.lon=2.3522.
func Coordinate(key string, lat, lon float64) Field {
	return Field{Key: key, Value: slog.GroupValue(
		slog.Float64("lat", lat),
		slog.Float64("lon", lon),
	)}
}

// Err records err under "error"; nil becomes "".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}
