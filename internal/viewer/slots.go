package viewer

import (
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/topology"
)

// Slot display region a remote video is bound to.
type Slot int

// Slots.
const (
	SlotNone Slot = iota
	SlotScreen
	SlotWebcam
)

func (s Slot) String() string {
	switch s {
	case SlotScreen:
		return "screen"
	case SlotWebcam:
		return "webcam"
	default:
		return "none"
	}
}

// Region name of the display region backing the slot.
func (s Slot) Region() string {
	switch s {
	case SlotScreen:
		return "remote-screen"
	case SlotWebcam:
		return "remote-webcam"
	default:
		return ""
	}
}

// Fit scaling used to render into the slot.
func (s Slot) Fit() rtc.Fit {
	if s == SlotWebcam {
		return rtc.FitCover
	}

	return rtc.FitContain
}

// Assigner binds remote publishers to the screen and webcam slots. Publishers using the
// well known host identities go to their slot. Anonymous publishers are placed first come
// first served, which depends on event arrival order and may differ between viewers after
// reconnects.
//
// An Assigner is not safe for concurrent use.
type Assigner struct {
	screen rtc.UID
	webcam rtc.UID
}

// Assign returns the slot for uid and the publisher it displaced, if any.
// SlotNone means both slots are taken and the publisher is not shown.
func (a *Assigner) Assign(uid rtc.UID) (Slot, rtc.UID) {
	if uid == "" {
		return SlotNone, ""
	}
	if slot := a.SlotOf(uid); slot != SlotNone {
		return slot, ""
	}

	if source, ok := topology.IdentitySource(uid); ok {
		slot := SlotScreen
		if source != models.SourceScreen {
			slot = SlotWebcam
		}
		displaced := a.owner(slot)
		a.bind(slot, uid)
		return slot, displaced
	}

	switch {
	case a.screen == "":
		a.screen = uid
		return SlotScreen, ""
	case a.webcam == "":
		a.webcam = uid
		return SlotWebcam, ""
	default:
		return SlotNone, ""
	}
}

// Release frees the slot bound to uid and returns it.
func (a *Assigner) Release(uid rtc.UID) Slot {
	slot := a.SlotOf(uid)
	if slot != SlotNone {
		a.bind(slot, "")
	}

	return slot
}

// SlotOf returns the slot bound to uid.
func (a *Assigner) SlotOf(uid rtc.UID) Slot {
	switch {
	case uid == "":
		return SlotNone
	case a.screen == uid:
		return SlotScreen
	case a.webcam == uid:
		return SlotWebcam
	default:
		return SlotNone
	}
}

// Owner returns the publisher bound to slot.
func (a *Assigner) Owner(slot Slot) (rtc.UID, bool) {
	uid := a.owner(slot)
	return uid, uid != ""
}

func (a *Assigner) owner(slot Slot) rtc.UID {
	switch slot {
	case SlotScreen:
		return a.screen
	case SlotWebcam:
		return a.webcam
	default:
		return ""
	}
}

func (a *Assigner) bind(slot Slot, uid rtc.UID) {
	switch slot {
	case SlotScreen:
		a.screen = uid
	case SlotWebcam:
		a.webcam = uid
	}
}
