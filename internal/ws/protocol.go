package ws

import (
	"time"

	"github.com/KasunDA/fc-admin/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Session session.Snapshot `json:"session"`
	Deploys []DeploySummary  `json:"deploys"`
}

type DeltaPayload struct {
	Events []session.Event `json:"events"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// DeploySummary describes a pending deploy without its changes.
type DeploySummary struct {
	ID        string         `json:"id"`
	Host      string         `json:"host,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Changes   int            `json:"changes"`
	Counts    map[string]int `json:"counts,omitempty"`
}

func summarize(d *session.Deploy) DeploySummary {
	s := DeploySummary{ID: d.ID, Host: d.Host, CreatedAt: d.CreatedAt, Changes: d.Len()}
	for ns, evs := range d.Collectors {
		if len(evs) == 0 {
			continue
		}
		if s.Counts == nil {
			s.Counts = make(map[string]int)
		}
		s.Counts[ns] = len(evs)
	}
	return s
}
