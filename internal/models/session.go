package models

import (
	"fmt"
	"time"
)

// Session types.
const (
	TypeAdmin   = "admin"
	TypeStudent = "student"
)

// TimePrecision precision of stored session timestamps, the coarsest of the supported stores.
const TimePrecision = time.Millisecond

// Session represents a screen sharing session created by a host.
type Session struct {
	ID               string
	Type             string
	UniqueID         string
	ShareURL         string
	AgoraChannelName string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidType checks if a session type is one of the known types.
func ValidType(sessionType string) bool {
	return sessionType == TypeAdmin || sessionType == TypeStudent
}

// View returns the representation of the session exposed over the api.
func (s Session) View() SessionView {
	return SessionView{
		ID:               s.ID,
		Type:             s.Type,
		UniqueID:         s.UniqueID,
		ShareURL:         s.ShareURL,
		AgoraChannelName: s.AgoraChannelName,
		Active:           s.Active,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (s Session) String() string {
	return fmt.Sprintf(
		"Session(id=%s, type=%s, uniqueId=%s, channel=%s, active=%t, createdAt=%v, updatedAt=%v)",
		s.ID,
		s.Type,
		s.UniqueID,
		s.AgoraChannelName,
		s.Active,
		s.CreatedAt,
		s.UpdatedAt,
	)
}

// SessionView json representation of a session.
type SessionView struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	UniqueID         string    `json:"unique_id"`
	ShareURL         string    `json:"userurl"`
	AgoraChannelName string    `json:"agoraChannelName,omitempty"`
	Active           bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SessionResponse response envelope for a single session.
type SessionResponse struct {
	Success bool        `json:"success"`
	Session SessionView `json:"session"`
}

// SessionsResponse response envelope for a list of sessions.
type SessionsResponse struct {
	Success  bool          `json:"success"`
	Sessions []SessionView `json:"sessions"`
}

// ErrorResponse uniform envelope for failed requests.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ChannelName realtime channel of the session.
func (v SessionView) ChannelName() string {
	if v.AgoraChannelName != "" {
		return v.AgoraChannelName
	}

	return v.UniqueID
}
