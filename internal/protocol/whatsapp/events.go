package whatsapp

import (
	"errors"
	"fmt"

	"github.com/rpggio/sendgate/internal/domain/session"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Close causes reported to the session layer.
var (
	// ErrConnectionLost reports a dropped socket or keepalive timeout.
	ErrConnectionLost = errors.New("connection lost")
	// ErrStreamReplaced reports that another client took over the device's stream.
	ErrStreamReplaced = errors.New("connection replaced by another client")
	// ErrClientOutdated reports that the server refused this client version.
	ErrClientOutdated = errors.New("client version rejected by server")
)

// translateEvent maps a protocol event to a lifecycle event.
// self is the paired device identity, nil before pairing.
// Events that do not affect the session lifecycle report false.
func translateEvent(evt any, self *types.JID) (session.Event, bool) {
	switch e := evt.(type) {
	case *events.QR:
		if len(e.Codes) == 0 {
			return session.Event{}, false
		}
		return session.Event{Kind: session.EventPairingChallenge, Challenge: e.Codes[0]}, true

	case *events.Connected:
		ev := session.Event{Kind: session.EventConnectionOpen}
		if self != nil {
			ev.Identity = self.User
			ev.DeviceID = self.String()
		}
		return ev, true

	case *events.LoggedOut:
		return session.Event{
			Kind:      session.EventConnectionClosed,
			LoggedOut: true,
			Err:       fmt.Errorf("logged out: %v", e.Reason),
		}, true

	case *events.ConnectFailure:
		return session.Event{
			Kind:      session.EventConnectionClosed,
			LoggedOut: e.Reason.IsLoggedOut(),
			Err:       fmt.Errorf("connect failure %v: %s", e.Reason, e.Message),
		}, true

	case *events.TemporaryBan:
		return session.Event{
			Kind: session.EventConnectionClosed,
			Err:  fmt.Errorf("temporarily banned: %v", e.Code),
		}, true

	case *events.StreamReplaced:
		return session.Event{Kind: session.EventConnectionClosed, Err: ErrStreamReplaced}, true

	case *events.ClientOutdated:
		return session.Event{Kind: session.EventConnectionClosed, Err: ErrClientOutdated}, true

	case *events.Disconnected:
		return session.Event{Kind: session.EventConnectionClosed, Err: ErrConnectionLost}, true
	}

	return session.Event{}, false
}
