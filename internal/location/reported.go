package location

import (
	"context"
	"strings"
	"time"
)

// PermissionStatus is the device's location permission state as reported by the client.
type PermissionStatus string

const (
	PermissionGranted     PermissionStatus = "granted"
	PermissionDenied      PermissionStatus = "denied"
	PermissionUnavailable PermissionStatus = "unavailable"
	PermissionUnsupported PermissionStatus = "unsupported"
	// PermissionUnknown stands in for any status the client sent that is not one of the above.
	PermissionUnknown PermissionStatus = "unknown"
)

// PermissionChecker is implemented by geolocators that know whether the user allowed location
// access. A non-nil error means no position may be returned, cached or not.
type PermissionChecker interface {
	CheckPermission() error
}

// Fix is one position sample captured on the device.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// ReportedGeolocator answers from the samples a device submitted along with its check-in.
type ReportedGeolocator struct {
	Status PermissionStatus
	Fixes  []Fix
	Now    func() time.Time
}

// NewReportedGeolocator builds a geolocator from a device report. An empty status is read as
// granted; an unrecognized one as PermissionUnknown.
func NewReportedGeolocator(status string, fixes []Fix) *ReportedGeolocator {
	s := PermissionStatus(strings.ToLower(strings.TrimSpace(status)))
	switch s {
	case "":
		s = PermissionGranted
	case PermissionGranted, PermissionDenied, PermissionUnavailable, PermissionUnsupported:
	default:
		s = PermissionUnknown
	}
	return &ReportedGeolocator{Status: s, Fixes: fixes, Now: time.Now}
}

// CheckPermission returns nil only for a granted status.
func (g *ReportedGeolocator) CheckPermission() error {
	switch g.Status {
	case PermissionGranted:
		return nil
	case PermissionDenied:
		return ErrPermissionDenied
	case PermissionUnsupported:
		return ErrUnsupported
	case PermissionUnavailable:
		return ErrPositionUnavailable
	}
	return ErrUnknown
}

// CurrentPosition returns the newest fix within opts.MaximumAge that satisfies the accuracy request.
func (g *ReportedGeolocator) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, &Error{Code: CodeTimeout, Message: ErrTimeout.Message, Err: err}
	}

	if err := g.CheckPermission(); err != nil {
		return Position{}, err
	}

	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}

	var (
		best  Fix
		found bool
	)
	for _, f := range g.Fixes {
		if !usable(f, opts, now) {
			continue
		}
		if !found || f.CapturedAt.After(best.CapturedAt) {
			best, found = f, true
		}
	}
	if !found {
		return Position{}, ErrPositionUnavailable
	}
	return Position{
		Latitude:   best.Latitude,
		Longitude:  best.Longitude,
		Accuracy:   best.Accuracy,
		CapturedAt: best.CapturedAt,
	}, nil
}

func usable(f Fix, opts Options, now time.Time) bool {
	if f.CapturedAt.IsZero() {
		return false
	}
	if f.Latitude < -90 || f.Latitude > 90 || f.Longitude < -180 || f.Longitude > 180 {
		return false
	}
	// Device clocks run ahead sometimes; a fix from the future counts as fresh.
	if age := now.Sub(f.CapturedAt); age > opts.MaximumAge {
		return false
	}
	if opts.HighAccuracy && (f.Accuracy <= 0 || f.Accuracy > HighAccuracyRadius) {
		return false
	}
	return true
}
