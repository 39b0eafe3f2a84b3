package models

// AttendeeType is the attendee category shown in notifications and used for routing.
// Values are the labels printed in the delivered message.
type AttendeeType string

const (
	AttendeeMember        AttendeeType = "Thành viên"
	AttendeeInvitedGuest  AttendeeType = "Khách mời"
	AttendeeVisitingGuest AttendeeType = "Khách thăm"
	AttendeeSpecialGuest  AttendeeType = "Khách đặc biệt"
)

// memberAlias is the English spelling of the member category.
const memberAlias = "Member"

// AttendeeTypes lists the known categories in form order.
var AttendeeTypes = []AttendeeType{
	AttendeeMember,
	AttendeeInvitedGuest,
	AttendeeVisitingGuest,
	AttendeeSpecialGuest,
}

var attendeeAliases = map[string]AttendeeType{
	memberAlias:      AttendeeMember,
	"Invited Guest":  AttendeeInvitedGuest,
	"Visiting Guest": AttendeeVisitingGuest,
	"Special Guest":  AttendeeSpecialGuest,
}

// ParseAttendeeType maps a form value (label or English name) to a known category.
// Matching is exact. Unrecognized input is returned unchanged with ok=false so it can still be
// printed verbatim; it routes to the guest chat.
func ParseAttendeeType(s string) (AttendeeType, bool) {
	for _, t := range AttendeeTypes {
		if string(t) == s {
			return t, true
		}
	}
	if t, ok := attendeeAliases[s]; ok {
		return t, true
	}
	return AttendeeType(s), false
}

// IsMember reports whether the category is the chapter member category,
// under either its label or its English spelling.
func (t AttendeeType) IsMember() bool {
	return t == AttendeeMember || t == memberAlias
}

func (t AttendeeType) String() string {
	return string(t)
}
