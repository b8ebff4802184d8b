package changes

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownNamespace is returned when an event targets a namespace that
	// is not part of the current capture session.
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrInvalidChange is returned for payloads that carry no usable key.
	ErrInvalidChange = errors.New("invalid change payload")
)

// Fields of an inbound payload that are not folded into metadata.
const (
	fieldKey       = "key"
	fieldValue     = "value"
	fieldMetadata  = "metadata"
	fieldNamespace = "namespace"
)

// Event is one observed configuration change, identified within its namespace
// by Key. Value and Metadata are opaque and never interpreted here.
type Event struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Clone returns a copy of the event that shares no memory with the original.
func (e Event) Clone() Event {
	e.Value = cloneRaw(e.Value)
	e.Metadata = cloneRaw(e.Metadata)
	return e
}

// Entry is one row of a collector dump. It marshals as a [key, value] pair.
type Entry struct {
	Key   string
	Value json.RawMessage
}

func (e Entry) MarshalJSON() ([]byte, error) {
	value := e.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return json.Marshal([]any{e.Key, value})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("dump entry: want [key, value], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Key); err != nil {
		return fmt.Errorf("dump entry key: %w", err)
	}
	e.Value = cloneRaw(pair[1])
	return nil
}

// ParsePayload builds an Event from the JSON body posted by a change logger.
//
// The body must be an object with a string "key". "value" is taken verbatim.
// An explicit "metadata" member is used as-is; otherwise any remaining
// top-level members (for example "schema" and "signature" sent by the
// gsettings logger) are collected into a metadata object so that Payload can
// restore the original shape.
func ParsePayload(namespace string, body []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if fields == nil {
		return Event{}, fmt.Errorf("%w: body is not an object", ErrInvalidChange)
	}

	var key string
	if raw, ok := fields[fieldKey]; ok {
		if err := json.Unmarshal(raw, &key); err != nil {
			return Event{}, fmt.Errorf("%w: key must be a string", ErrInvalidChange)
		}
	}
	if key == "" {
		return Event{}, fmt.Errorf("%w: missing key", ErrInvalidChange)
	}

	ev := Event{
		Namespace: namespace,
		Key:       key,
		Value:     cloneRaw(fields[fieldValue]),
	}

	if raw, ok := fields[fieldMetadata]; ok {
		ev.Metadata = cloneRaw(raw)
		return ev, nil
	}

	extra := make(map[string]json.RawMessage)
	for name, raw := range fields {
		switch name {
		case fieldKey, fieldValue, fieldNamespace:
			continue
		}
		extra[name] = raw
	}
	if len(extra) > 0 {
		data, err := json.Marshal(extra)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		ev.Metadata = data
	}
	return ev, nil
}

// Payload renders the event in the shape it was submitted in: an object with
// "key" and "value", plus the members of an object-valued Metadata. Metadata
// that is not an object, or that would shadow key/value, is kept nested under
// "metadata".
func (e Event) Payload() (json.RawMessage, error) {
	out := map[string]json.RawMessage{}

	key, err := json.Marshal(e.Key)
	if err != nil {
		return nil, err
	}
	out[fieldKey] = key
	if len(e.Value) > 0 {
		out[fieldValue] = e.Value
	} else {
		out[fieldValue] = json.RawMessage("null")
	}

	if len(e.Metadata) > 0 {
		var meta map[string]json.RawMessage
		flat := json.Unmarshal(e.Metadata, &meta) == nil && meta != nil
		if flat {
			for name := range meta {
				if name == fieldKey || name == fieldValue || name == fieldMetadata || name == fieldNamespace {
					flat = false
					break
				}
			}
		}
		if flat {
			for name, raw := range meta {
				out[name] = raw
			}
		} else {
			out[fieldMetadata] = e.Metadata
		}
	}

	// Map keys are encoded in sorted order, keeping payloads byte-stable.
	return json.Marshal(out)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
