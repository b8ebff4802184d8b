// Package client talks to the fc-admin HTTP API and its live event feed.
// Types mirror the server's JSON without importing server packages.
package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the WebSocket message kind.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
)

// WSMessage is the feed envelope.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Session state names.
const (
	StateIdle   = "idle"
	StateActive = "active"
)

// Session is the server's session view.
type Session struct {
	State          string         `json:"state"`
	Host           string         `json:"host,omitempty"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	Namespaces     []string       `json:"namespaces"`
	Counts         map[string]int `json:"counts,omitempty"`
	PendingDeploys int            `json:"pendingDeploys"`
}

// Active reports whether a capture session is running.
func (s Session) Active() bool { return s.State == StateActive }

// DeploySummary describes a committed selection waiting to be saved.
type DeploySummary struct {
	ID        string         `json:"id"`
	Host      string         `json:"host,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Changes   int            `json:"changes"`
	Counts    map[string]int `json:"counts,omitempty"`
}

type SnapshotPayload struct {
	Session Session         `json:"session"`
	Deploys []DeploySummary `json:"deploys"`
}

// Event types published on the feed.
const (
	EventSessionStarted  = "session_started"
	EventSessionStopped  = "session_stopped"
	EventChangeRecorded  = "change_recorded"
	EventDeployCommitted = "deploy_committed"
	EventDeploySaved     = "deploy_saved"
	EventDeployDiscarded = "deploy_discarded"
)

// Event is one lifecycle notification.
type Event struct {
	Type      string          `json:"type"`
	Host      string          `json:"host,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	DeployID  string          `json:"deployId,omitempty"`
	Changes   int             `json:"changes,omitempty"`
	At        time.Time       `json:"at"`
}

type DeltaPayload struct {
	Events []Event `json:"events"`
}

// Change is one row of a namespace dump, sent as [key, value].
type Change struct {
	Key   string
	Value json.RawMessage
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("change: want [key, value], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Key); err != nil {
		return err
	}
	c.Value = pair[1]
	return nil
}

// IndexEntry is one saved profile.
type IndexEntry struct {
	ID          string `json:"url"`
	DisplayName string `json:"displayName"`
}

// ProfileForm is what the console submits when saving a deploy.
type ProfileForm struct {
	Name        string `json:"profile-name"`
	Description string `json:"profile-desc"`
	Users       string `json:"users"`
	Groups      string `json:"groups"`
	Hosts       string `json:"hosts,omitempty"`
	Hostgroups  string `json:"hostgroups,omitempty"`
}
