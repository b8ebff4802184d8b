package session

import (
	"sort"
	"sync"
	"time"

	"github.com/KasunDA/fc-admin/internal/changes"
)

// Deploy is a committed selection awaiting conversion into a profile.
// Once stored it is never modified.
type Deploy struct {
	ID         string                     `json:"id"`
	Host       string                     `json:"host,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	Collectors map[string][]changes.Event `json:"collectors"`
}

// Clone returns a deep copy of the deploy.
func (d *Deploy) Clone() *Deploy {
	c := *d
	c.Collectors = make(map[string][]changes.Event, len(d.Collectors))
	for ns, events := range d.Collectors {
		cp := make([]changes.Event, len(events))
		for i, ev := range events {
			cp[i] = ev.Clone()
		}
		c.Collectors[ns] = cp
	}
	return &c
}

// Len returns the total number of events across namespaces.
func (d *Deploy) Len() int {
	n := 0
	for _, events := range d.Collectors {
		n += len(events)
	}
	return n
}

// Deploys is the pending-deploys table. Entries outlive the capture session
// that produced them and are removed only when saved or discarded.
type Deploys struct {
	mu      sync.RWMutex
	deploys map[string]*Deploy
}

func NewDeploys() *Deploys {
	return &Deploys{
		deploys: make(map[string]*Deploy),
	}
}

func (s *Deploys) Get(id string) (*Deploy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deploys[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Put stores a copy of d under d.ID.
func (s *Deploys) Put(d *Deploy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deploys[d.ID] = d.Clone()
}

// Delete removes id and reports whether it was present.
func (s *Deploys) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deploys[id]
	delete(s.deploys, id)
	return ok
}

// List returns copies of every pending deploy, oldest first.
func (s *Deploys) List() []*Deploy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Deploy, 0, len(s.deploys))
	for _, d := range s.deploys {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Deploys) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deploys)
}
