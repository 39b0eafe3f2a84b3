package models

import (
	"strconv"
	"strings"
)

// Location is the attendee position attached to a check-in.
// Address is empty unless reverse geocoding succeeded.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// CheckInEvent is a single attendee check-in handed to the notifier.
// It is built per request and never stored.
type CheckInEvent struct {
	FullName     string       `json:"full_name"`
	PhoneNumber  string       `json:"phone_number"`
	Industry     string       `json:"industry"`
	AttendeeType AttendeeType `json:"attendee_type"`
	InvitedBy    string       `json:"invited_by,omitempty"`
	Location     *Location    `json:"location,omitempty"`
	Timestamp    string       `json:"timestamp"`
}

// Inviter returns the trimmed inviter name; empty means no inviter.
func (e CheckInEvent) Inviter() string {
	return strings.TrimSpace(e.InvitedBy)
}

// Coordinates renders the position as "<lat>, <lng>" in shortest decimal form.
func (l Location) Coordinates() string {
	return FormatCoordinates(l.Latitude, l.Longitude)
}

// FormatCoordinates renders a coordinate pair as "<lat>, <lng>", e.g. "10.123, 106.456".
func FormatCoordinates(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}
