package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attemptResult struct {
	pos Position
	err error
}

// scriptedGeolocator answers attempts from a script and records the options it was called with.
type scriptedGeolocator struct {
	script []attemptResult
	calls  []Options
}

func (g *scriptedGeolocator) CurrentPosition(_ context.Context, opts Options) (Position, error) {
	g.calls = append(g.calls, opts)
	if len(g.calls) > len(g.script) {
		return Position{}, errors.New("unexpected attempt")
	}
	r := g.script[len(g.calls)-1]
	return r.pos, r.err
}

type blockingGeolocator struct {
	calls int
}

func (g *blockingGeolocator) CurrentPosition(ctx context.Context, _ Options) (Position, error) {
	g.calls++
	<-ctx.Done()
	return Position{}, ctx.Err()
}

func TestResolve_NoGeolocatorIsUnsupported(t *testing.T) {
	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, CodeUnsupported, CodeOf(err))
}

func TestResolve_PermissionDeniedOnBothTiers(t *testing.T) {
	geo := &scriptedGeolocator{script: []attemptResult{
		{err: ErrPermissionDenied},
		{err: ErrPermissionDenied},
	}}
	r := NewResolver(geo, nil)

	_, err := r.Resolve(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	require.Len(t, geo.calls, 2, "exactly two acquisition attempts")
	assert.Equal(t, DefaultTiers[0], geo.calls[0])
	assert.Equal(t, DefaultTiers[1], geo.calls[1])
}

func TestResolve_TierOptions(t *testing.T) {
	assert.Equal(t, Options{HighAccuracy: true, Timeout: 8 * time.Second, MaximumAge: time.Minute}, DefaultTiers[0])
	assert.Equal(t, Options{HighAccuracy: false, Timeout: 15 * time.Second, MaximumAge: 5 * time.Minute}, DefaultTiers[1])
}

func TestResolve_FirstTierSuccessStops(t *testing.T) {
	want := Position{Latitude: 10.123, Longitude: 106.456, Accuracy: 12}
	geo := &scriptedGeolocator{script: []attemptResult{{pos: want}}}

	got, err := NewResolver(geo, nil).Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, geo.calls, 1)
}

func TestResolve_FallsBackToSecondTier(t *testing.T) {
	want := Position{Latitude: 10.8, Longitude: 106.7, Accuracy: 1500}
	geo := &scriptedGeolocator{script: []attemptResult{
		{err: ErrTimeout},
		{pos: want},
	}}

	got, err := NewResolver(geo, nil).Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, geo.calls, 2)
}

func TestResolve_UnsupportedOnFirstTierStillRetries(t *testing.T) {
	geo := &scriptedGeolocator{script: []attemptResult{
		{err: ErrUnsupported},
		{err: ErrPositionUnavailable},
	}}

	_, err := NewResolver(geo, nil).Resolve(context.Background())

	assert.ErrorIs(t, err, ErrPositionUnavailable)
	assert.Len(t, geo.calls, 2)
}

func TestResolve_UntypedErrorIsUnknown(t *testing.T) {
	cause := errors.New("sensor crashed")
	geo := &scriptedGeolocator{script: []attemptResult{{err: cause}, {err: cause}}}

	_, err := NewResolver(geo, nil).Resolve(context.Background())

	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, CodeUnknown, le.Code)
	assert.ErrorIs(t, err, cause)
}

func TestResolve_TierTimeoutIsEnforced(t *testing.T) {
	geo := &blockingGeolocator{}
	r := NewResolver(geo, nil)
	r.tiers = []Options{
		{HighAccuracy: true, Timeout: 10 * time.Millisecond},
		{HighAccuracy: false, Timeout: 20 * time.Millisecond},
	}

	_, err := r.Resolve(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, geo.calls)
}

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := &Error{Code: CodePermissionDenied, Message: "blocked by policy"}

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "permission_denied")
}
