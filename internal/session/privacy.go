package session

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"path"
)

// redactedValue replaces change values the filter hides.
var redactedValue = json.RawMessage(`"<redacted>"`)

// PrivacyFilter masks session data before it is broadcast to feed clients.
// The HTTP dump endpoints are not filtered. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskHosts bool
	// RedactNamespaces holds path.Match patterns; change values in matching
	// namespaces are replaced before broadcast. Keys are kept.
	RedactNamespaces []string
}

// Redacts reports whether change values in namespace are hidden.
func (f *PrivacyFilter) Redacts(namespace string) bool {
	for _, pattern := range f.RedactNamespaces {
		if matched, _ := path.Match(pattern, namespace); matched {
			return true
		}
	}
	return false
}

// MaskHost returns host, hashed when hosts are masked.
func (f *PrivacyFilter) MaskHost(host string) string {
	if f.MaskHosts && host != "" {
		return shortHash(host)
	}
	return host
}

// ApplyEvent returns a copy of ev with sensitive fields masked according to
// the filter configuration. The original event is never modified.
func (f *PrivacyFilter) ApplyEvent(ev Event) Event {
	ev.Host = f.MaskHost(ev.Host)
	if len(ev.Value) > 0 && f.Redacts(ev.Namespace) {
		ev.Value = redactedValue
	}
	return ev
}

// ApplySnapshot returns a copy of snap with the host masked.
func (f *PrivacyFilter) ApplySnapshot(snap Snapshot) Snapshot {
	snap.Host = f.MaskHost(snap.Host)
	return snap
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskHosts && len(f.RedactNamespaces) == 0
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
