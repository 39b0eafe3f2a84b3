package notify

import "github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"

// Router maps an attendee category to the Telegram chat that receives its check-ins.
type Router struct {
	memberChatID string
	guestChatID  string
}

// NewRouter creates a router for the member and guest chats.
func NewRouter(memberChatID, guestChatID string) Router {
	return Router{memberChatID: memberChatID, guestChatID: guestChatID}
}

// Route returns the member chat for members and the guest chat for every other category.
func (r Router) Route(t models.AttendeeType) string {
	if t.IsMember() {
		return r.memberChatID
	}
	return r.guestChatID
}

// RouteCategory routes a raw form value. Only the exact "Member" or "Thành viên" reaches the member chat.
func (r Router) RouteCategory(category string) string {
	t, _ := models.ParseAttendeeType(category)
	return r.Route(t)
}
