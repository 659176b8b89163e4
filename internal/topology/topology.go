// Package topology decides how many realtime connections a role opens into a session's
// channel and which identities they use.
package topology

import (
	"fmt"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
)

// Fixed identities of the dual stream host connections.
const (
	ScreenIdentity rtc.UID = "screen"
	CameraIdentity rtc.UID = "camera"
)

// Variant of the host topology.
type Variant int

// Variants.
const (
	// Dual opens one connection per capture source with fixed identities.
	Dual Variant = iota
	// Single opens one anonymous connection that carries whichever source is active.
	Single
)

func (v Variant) String() string {
	switch v {
	case Dual:
		return "dual"
	case Single:
		return "single"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Connection planned connection into a channel.
type Connection struct {
	// Identity to join with, empty for an SDK generated identity.
	Identity rtc.UID
	// Sources capture sources the connection may publish, empty for subscribe only.
	Sources []string
}

// Publishes reports whether the connection may publish the source.
func (c Connection) Publishes(source string) bool {
	for _, s := range c.Sources {
		if s == source {
			return true
		}
	}

	return false
}

// Plan returns the connections a role opens. Viewers always get one anonymous subscriber.
func Plan(role string, variant Variant) ([]Connection, error) {
	switch role {
	case models.RoleViewer:
		return []Connection{{}}, nil
	case models.RoleHost:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	switch variant {
	case Dual:
		return []Connection{
			{Identity: ScreenIdentity, Sources: []string{models.SourceScreen}},
			{Identity: CameraIdentity, Sources: []string{models.SourceCamera}},
		}, nil
	case Single:
		return []Connection{
			{Sources: []string{models.SourceScreen, models.SourceCamera}},
		}, nil
	default:
		return nil, fmt.Errorf("unknown topology variant %s", variant)
	}
}

// IdentitySource maps a well known identity to the source it carries.
func IdentitySource(uid rtc.UID) (string, bool) {
	switch uid {
	case ScreenIdentity:
		return models.SourceScreen, true
	case CameraIdentity:
		return models.SourceCamera, true
	default:
		return "", false
	}
}
