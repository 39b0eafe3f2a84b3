package notify

import (
	"html"
	"strings"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"
)

const (
	messageHeader   = "🎯 THÔNG BÁO CHECK-IN THÀNH CÔNG"
	namePrefix      = "👤 Họ tên: "
	phonePrefix     = "📱 Số điện thoại: "
	industryPrefix  = "🏢 Ngành nghề: "
	attendeePrefix  = "👥 Loại tham dự: "
	inviterPrefix   = "🤝 Khách của: "
	locationPrefix  = "📍 Vị trí: "
	addressPrefix   = "🗺️ Địa chỉ: "
	noLocationLine  = "📍 Vị trí: Không có dữ liệu vị trí"
	timestampPrefix = "⏰ Thời gian: "
	messageFooter   = "✅ Check-in thành công cho buổi họp BNI FELIX Chapter!"
)

// FormatMessage renders the check-in notification. User-supplied values are HTML-escaped
// because the message is sent with the HTML parse mode.
func FormatMessage(e models.CheckInEvent) string {
	var b strings.Builder

	b.WriteString(messageHeader + "\n\n")
	b.WriteString(namePrefix + esc(e.FullName) + "\n")
	b.WriteString(phonePrefix + esc(e.PhoneNumber) + "\n")
	b.WriteString(industryPrefix + esc(e.Industry) + "\n")
	b.WriteString(attendeePrefix + esc(e.AttendeeType.String()) + "\n")

	if inviter := e.Inviter(); inviter != "" {
		b.WriteString(inviterPrefix + esc(inviter) + "\n")
	}

	if e.Location != nil {
		b.WriteString(locationPrefix + e.Location.Coordinates() + "\n")
		if e.Location.Address != "" {
			b.WriteString(addressPrefix + esc(e.Location.Address) + "\n")
		}
	} else {
		b.WriteString(noLocationLine + "\n")
	}

	b.WriteString(timestampPrefix + esc(e.Timestamp) + "\n\n")
	b.WriteString(messageFooter)
	return b.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}
