// Package location acquires an attendee position with a two-tier accuracy/timeout fallback.
package location

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HighAccuracyRadius is the largest accuracy radius, in meters, accepted when high accuracy is requested.
const HighAccuracyRadius = 100.0

// Options configures one acquisition attempt.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is the oldest cached position the attempt may return.
	MaximumAge time.Duration
}

// Position is an acquired coordinate with its accuracy radius in meters.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// Geolocator is the platform location capability.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// DefaultTiers: precise and fresh first, then coarse with a longer timeout and older cache.
var DefaultTiers = []Options{
	{HighAccuracy: true, Timeout: 8 * time.Second, MaximumAge: 60 * time.Second},
	{HighAccuracy: false, Timeout: 15 * time.Second, MaximumAge: 300 * time.Second},
}

// Resolver runs the tiered acquisition against a Geolocator.
type Resolver struct {
	geo    Geolocator
	tiers  []Options
	logger *zap.Logger
}

// NewResolver creates a resolver using DefaultTiers. A nil geo means the platform has no location support.
func NewResolver(geo Geolocator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{geo: geo, tiers: DefaultTiers, logger: logger}
}

// Resolve tries each tier once, in order. The last tier's failure is returned as a *Error.
func (r *Resolver) Resolve(ctx context.Context) (Position, error) {
	if r.geo == nil {
		return Position{}, ErrUnsupported
	}

	var lastErr error
	for i, tier := range r.tiers {
		pos, err := r.attempt(ctx, tier)
		if err == nil {
			r.logger.Debug("position acquired",
				zap.Int("tier", i+1),
				zap.Bool("high_accuracy", tier.HighAccuracy),
				zap.Float64("accuracy", pos.Accuracy),
			)
			return pos, nil
		}
		lastErr = err
		r.logger.Debug("position attempt failed",
			zap.Int("tier", i+1),
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
	}
	return Position{}, normalize(lastErr)
}

func (r *Resolver) attempt(ctx context.Context, tier Options) (Position, error) {
	ctx, cancel := context.WithTimeout(ctx, tier.Timeout)
	defer cancel()
	return r.geo.CurrentPosition(ctx, tier)
}
