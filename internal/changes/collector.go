package changes

import "sort"

// Collector accumulates the latest change per key for one namespace.
//
// Dumps and selections are always ordered by key, never by arrival, so an
// index taken from a dump resolves to the same event on a later Select as
// long as nothing was recorded in between.
//
// A Collector is not safe for concurrent use; Registry serializes access.
type Collector struct {
	namespace string
	changes   map[string]Event
}

// NewCollector returns an empty collector for the given namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace: namespace,
		changes:   make(map[string]Event),
	}
}

func (c *Collector) Namespace() string {
	return c.namespace
}

// Len returns the number of distinct keys recorded.
func (c *Collector) Len() int {
	return len(c.changes)
}

// Record stores ev under its key, replacing any earlier event for that key.
// There is no field-level merging.
func (c *Collector) Record(ev Event) {
	ev = ev.Clone()
	ev.Namespace = c.namespace
	c.changes[ev.Key] = ev
}

// Dump returns (key, value) pairs sorted by key.
func (c *Collector) Dump() []Entry {
	keys := c.sortedKeys()
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		out = append(out, Entry{Key: key, Value: cloneRaw(c.changes[key].Value)})
	}
	return out
}

// Select returns the events at the given positions of the key-sorted order,
// in the order the indices were given. Positions outside [0, Len) are
// skipped.
func (c *Collector) Select(indices []int) []Event {
	keys := c.sortedKeys()
	out := make([]Event, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(keys) {
			continue
		}
		out = append(out, c.changes[keys[idx]].Clone())
	}
	return out
}

// Reset drops every recorded event.
func (c *Collector) Reset() {
	c.changes = make(map[string]Event)
}

func (c *Collector) sortedKeys() []string {
	keys := make([]string, 0, len(c.changes))
	for key := range c.changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
