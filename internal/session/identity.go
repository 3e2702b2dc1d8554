package session

import "strings"

// DefaultServer is the user server of the WhatsApp network.
const DefaultServer = "s.whatsapp.net"

// CanonicalPhone strips the device suffix and the server from a self identity:
// "15551234567:12@s.whatsapp.net" becomes "15551234567".
func CanonicalPhone(selfID string) string {
	s := strings.TrimSpace(selfID)
	if i := strings.IndexAny(s, ":@"); i >= 0 {
		s = s[:i]
	}
	return s
}

// SelfJID is the destination for a self-send.
func SelfJID(phone, server string) string {
	if server == "" {
		server = DefaultServer
	}
	return phone + "@" + server
}
