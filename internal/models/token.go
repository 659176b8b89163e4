package models

// Roles a participant can request a realtime credential for.
const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// ValidRole checks if a role is one of the accepted roles.
func ValidRole(role string) bool {
	return role == RoleHost || role == RoleViewer
}

// TokenRequest request for a realtime channel credential.
type TokenRequest struct {
	ChannelName string `json:"channelName"`
	Role        string `json:"role"`
}

// Token signed, time bounded realtime channel credential.
type Token struct {
	Token     string `json:"token"`
	AppID     string `json:"appId"`
	UID       uint32 `json:"uid"`
	ExpiresAt int64  `json:"expiresAt"`
}
