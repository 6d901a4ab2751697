// Package location obtains position fixes from the platform provider and
// throttles how often they are forwarded to the reporting layer.
package location

import (
	"context"
	"errors"
	"time"
)

// Bounded wait for a single fix; past this the provider is treated as
// unable to produce one.
const FixTimeout = 15 * time.Second

var (
	ErrPermissionDenied    = errors.New("location permission not granted")
	ErrLocationUnavailable = errors.New("location provider could not produce a fix")
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Provider is the platform location facility. Implementations must honour
// the context and fail with ErrPermissionDenied or ErrLocationUnavailable.
type Provider interface {
	CurrentPosition(ctx context.Context) (Coordinate, error)
}

// Current fetches a single fix with the bounded wait applied. A provider
// timeout surfaces as ErrLocationUnavailable, never as a hang.
func Current(ctx context.Context, provider Provider) (Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, FixTimeout)
	defer cancel()

	coord, err := provider.CurrentPosition(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return Coordinate{}, ErrLocationUnavailable
	}

	return coord, err
}
