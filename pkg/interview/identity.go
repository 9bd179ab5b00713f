package interview

import (
	"strings"
)

// Room name markers.
const (
	TechnicalMarker   = "interview-"
	PhoneScreenMarker = "phone-screen-"
)

// IdentityKind tells which backend record a session belongs to.
type IdentityKind string

const (
	IdentityUnknown     IdentityKind = "unknown"
	IdentityApplication IdentityKind = "application"
	IdentityPhoneScreen IdentityKind = "phone_screen"
)

// Identity is derived once from the room name and never changes.
// ApplicationID is set only for IdentityApplication and SessionID only for
// IdentityPhoneScreen.
type Identity struct {
	Kind          IdentityKind
	ApplicationID string
	SessionID     string
}

// ResolveIdentity maps a room name to an interview identity. Technical
// interview rooms carry the application id as their first purely numeric
// hyphen-separated segment anywhere in the name; phone-screen rooms carry
// the session id after the marker. A marker with an empty id, or anything
// else, is unknown.
func ResolveIdentity(room string) Identity {
	if strings.Contains(room, TechnicalMarker) {
		for _, seg := range strings.Split(room, "-") {
			if isDigits(seg) {
				return Identity{Kind: IdentityApplication, ApplicationID: seg}
			}
		}
		return Identity{Kind: IdentityUnknown}
	}
	if strings.Contains(room, PhoneScreenMarker) {
		sessionID := strings.Replace(room, PhoneScreenMarker, "", 1)
		if strings.TrimSpace(sessionID) == "" {
			return Identity{Kind: IdentityUnknown}
		}
		return Identity{Kind: IdentityPhoneScreen, SessionID: sessionID}
	}
	return Identity{Kind: IdentityUnknown}
}

// ID returns the application or session id, whichever is set.
func (i Identity) ID() string {
	switch i.Kind {
	case IdentityApplication:
		return i.ApplicationID
	case IdentityPhoneScreen:
		return i.SessionID
	default:
		return ""
	}
}

// String is used in logs.
func (i Identity) String() string {
	if id := i.ID(); id != "" {
		return string(i.Kind) + ":" + id
	}
	return string(i.Kind)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
