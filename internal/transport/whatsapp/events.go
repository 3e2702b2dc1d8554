package whatsapp

import (
	"encoding/json"
	"errors"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wabot/internal/session"
)

// ReasonStreamReplaced is reported when another client took over the session.
const ReasonStreamReplaced = 440

// credentials is the blob persisted by the session store. The key material
// itself lives in whatsmeow's device store; this only names the device.
type credentials struct {
	JID          string `json:"jid"`
	Platform     string `json:"platform,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

func encodeCredentials(jid types.JID, platform, businessName string) ([]byte, error) {
	if jid.IsEmpty() {
		return nil, errors.New("whatsapp: empty device jid")
	}
	return json.Marshal(credentials{JID: jid.String(), Platform: platform, BusinessName: businessName})
}

func decodeCredentials(blob []byte) (types.JID, error) {
	var c credentials
	if err := json.Unmarshal(blob, &c); err != nil {
		return types.JID{}, err
	}
	if strings.TrimSpace(c.JID) == "" {
		return types.JID{}, errors.New("whatsapp: credentials without jid")
	}
	return types.ParseJID(c.JID)
}

// translate maps a whatsmeow event onto session events. self returns the
// device's own JID, or nil before pairing.
func translate(evt any, self func() *types.JID) []session.Event {
	switch v := evt.(type) {
	case *events.PairSuccess:
		blob, err := encodeCredentials(v.ID, v.Platform, v.BusinessName)
		if err != nil {
			return nil
		}
		return []session.Event{{Kind: session.EventCredentialsUpdated, Credentials: blob}}

	case *events.Connected:
		id := self()
		if id == nil || id.IsEmpty() {
			return nil
		}
		out := make([]session.Event, 0, 2)
		if blob, err := encodeCredentials(*id, "", ""); err == nil {
			out = append(out, session.Event{Kind: session.EventCredentialsUpdated, Credentials: blob})
		}
		return append(out, session.Event{Kind: session.EventConnectionOpen, SelfID: id.String()})

	case *events.LoggedOut:
		return closed(session.ReasonLoggedOut)

	case *events.StreamReplaced:
		return closed(ReasonStreamReplaced)

	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return closed(session.ReasonLoggedOut)
		}
		return closed(int(v.Reason))

	case *events.Disconnected:
		return closed(session.ReasonNone)

	// TemporaryBan, ClientOutdated and CATRefreshError end the connection
	// without a Disconnected event following.
	case events.PermanentDisconnect:
		return closed(session.ReasonNone)
	}
	return nil
}

func closed(reason int) []session.Event {
	return []session.Event{{Kind: session.EventConnectionClosed, Reason: reason}}
}
