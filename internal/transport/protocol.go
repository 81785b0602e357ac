package transport

import (
	"encoding/json"
	"time"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

// Message is the push channel envelope.
type Message struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

const (
	TypeWelcome        = "welcome"
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
)

// PresenceStatePayload carries the full snapshot table a client receives
// when its push channel opens.
type PresenceStatePayload struct {
	Snapshots []presence.Snapshot `json:"snapshots"`
}

// HeartbeatPayload is the body posted to the presence write endpoint.
type HeartbeatPayload struct {
	UserID        string                 `json:"userId"`
	SessionID     string                 `json:"sessionId,omitempty"`
	ActivityType  presence.ActivityType  `json:"activityType"`
	ActivityLevel presence.ActivityLevel `json:"activityLevel"`
	PageType      presence.PageType      `json:"pageType"`
	WorkspaceID   string                 `json:"workspaceId,omitempty"`
	DocumentID    string                 `json:"documentId,omitempty"`
	ParentID      string                 `json:"parentId,omitempty"`
	SentAt        time.Time              `json:"sentAt"`
}

// ActiveUsersResponse is the bootstrap call's response body.
type ActiveUsersResponse struct {
	Users []presence.Snapshot `json:"users"`
}
