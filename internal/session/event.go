package session

import (
	"encoding/json"
	"time"
)

// EventType classifies session lifecycle events.
type EventType int

const (
	EventSessionStarted  EventType = iota // bridge up, registry created
	EventSessionStopped                   // back to idle
	EventChangeRecorded                   // a change was routed into the registry
	EventDeployCommitted                  // a selection was frozen into a deploy
	EventDeploySaved                      // a deploy became a profile
	EventDeployDiscarded                  // a deploy was dropped without saving
)

var eventTypeNames = map[EventType]string{
	EventSessionStarted:  "session_started",
	EventSessionStopped:  "session_stopped",
	EventChangeRecorded:  "change_recorded",
	EventDeployCommitted: "deploy_committed",
	EventDeploySaved:     "deploy_saved",
	EventDeployDiscarded: "deploy_discarded",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event carries a lifecycle notification to observers. Only the fields
// relevant to Type are set.
type Event struct {
	Type      EventType       `json:"type"`
	Host      string          `json:"host,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	DeployID  string          `json:"deployId,omitempty"`
	Changes   int             `json:"changes,omitempty"` // events frozen into a deploy
	At        time.Time       `json:"at"`
}
