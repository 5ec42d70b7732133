// Package geocode turns a point on the globe into a human-readable place name.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/globe-poi/model"
)

var (
	// ErrNoResult means the provider answered but knows no place there, as
	// over open ocean.
	ErrNoResult = errors.New("geocode: no result")
	// ErrStatus wraps a non-2xx provider response.
	ErrStatus = errors.New("geocode: unexpected status")
)

// Address is a reverse-geocoding answer.
type Address struct {
	DisplayName string  `json:"display_name"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country,omitempty"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	CacheHit    bool    `json:"-"`
}

// Resolver looks up the place at a coordinate.
type Resolver interface {
	Reverse(ctx context.Context, loc model.GeoCoordinate) (Address, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, loc model.GeoCoordinate) (Address, error)

// Reverse calls f.
func (f ResolverFunc) Reverse(ctx context.Context, loc model.GeoCoordinate) (Address, error) {
	return f(ctx, loc)
}

// WithTimeout bounds every lookup made through r.
func WithTimeout(r Resolver, d time.Duration) Resolver {
	if d <= 0 {
		return r
	}
	return ResolverFunc(func(ctx context.Context, loc model.GeoCoordinate) (Address, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return r.Reverse(ctx, loc)
	})
}

// Static answers every lookup with the same name. Used when no provider is
// configured.
func Static(name string) Resolver {
	return ResolverFunc(func(_ context.Context, loc model.GeoCoordinate) (Address, error) {
		if name == "" {
			return Address{}, fmt.Errorf("%w at %s", ErrNoResult, loc)
		}
		return Address{DisplayName: name, Latitude: loc.Lat, Longitude: loc.Lon}, nil
	})
}
