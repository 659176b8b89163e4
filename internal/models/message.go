package models

import (
	"fmt"
)

// Message types
var (
	TypeStatus = "STATUS"
)

// Capture sources.
const (
	SourceScreen = "screen"
	SourceCamera = "camera"
)

// Capture states.
const (
	StateIdle      = "idle"
	StateAcquiring = "acquiring"
	StatePublished = "published"
	StateError     = "error"
)

// Message websocket message.
type Message struct {
	Type      string      `json:"type,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Body      interface{} `json:"body,omitempty"`
}

func (m Message) String() string {
	return fmt.Sprintf("Message(type=%s, sessionId=%s)", m.Type, m.SessionID)
}

// CaptureStatus reported state of one of the host's capture sources.
type CaptureStatus struct {
	Source string `json:"source"`
	State  string `json:"state"`
}

// Valid checks that both source and state are known values.
func (s CaptureStatus) Valid() bool {
	switch s.Source {
	case SourceScreen, SourceCamera:
	default:
		return false
	}

	switch s.State {
	case StateIdle, StateAcquiring, StatePublished, StateError:
		return true
	default:
		return false
	}
}

// StatusResponse answer to a reported capture status.
type StatusResponse struct {
	Success   bool `json:"success"`
	Listeners int  `json:"listeners"`
}
