package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the capture session state. There is exactly one session per
// process, so State is a process-wide value owned by Lifecycle.
type State int

const (
	Idle State = iota
	Active
)

var stateNames = map[State]string{
	Idle:   "idle",
	Active: "active",
}

var stateFromName = map[string]State{
	"idle":   Idle,
	"active": Active,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := stateFromName[name]
	if !ok {
		return fmt.Errorf("unknown session state %q", name)
	}
	*s = v
	return nil
}

// Snapshot is a point-in-time view of the capture session, safe to retain.
type Snapshot struct {
	State          State          `json:"state"`
	Host           string         `json:"host,omitempty"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	Namespaces     []string       `json:"namespaces"`
	Counts         map[string]int `json:"counts,omitempty"`
	PendingDeploys int            `json:"pendingDeploys"`
}

// IsActive reports whether the snapshot was taken while capturing.
func (s Snapshot) IsActive() bool {
	return s.State == Active
}
