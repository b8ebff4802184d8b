package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/KasunDA/fc-admin/internal/session"
)

var (
	ErrNotFound        = errors.New("profile not found")
	ErrInvalidMetadata = errors.New("invalid profile metadata")
	ErrStorageWrite    = errors.New("profile storage write failed")
)

// StorageError reports a failed persistence step. It matches
// ErrStorageWrite and unwraps to the backend error.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageWrite }

// AppliesTo lists the principals a profile is assigned to.
type AppliesTo struct {
	Users      []string `json:"users"`
	Groups     []string `json:"groups"`
	Hosts      []string `json:"hosts,omitempty"`
	Hostgroups []string `json:"hostgroups,omitempty"`
}

func (a AppliesTo) clone() AppliesTo {
	return AppliesTo{
		Users:      append([]string(nil), a.Users...),
		Groups:     append([]string(nil), a.Groups...),
		Hosts:      append([]string(nil), a.Hosts...),
		Hostgroups: append([]string(nil), a.Hostgroups...),
	}
}

// Empty reports whether no principal is listed.
func (a AppliesTo) Empty() bool {
	return len(a.Users)+len(a.Groups)+len(a.Hosts)+len(a.Hostgroups) == 0
}

// Profile is a persisted bundle of settings. Settings holds, per namespace,
// the selected changes in the order they were selected, each in the shape
// the change logger submitted it.
type Profile struct {
	UID         string                       `json:"uid"`
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	Priority    int                          `json:"priority,omitempty"`
	Settings    map[string][]json.RawMessage `json:"settings"`
	AppliesTo   AppliesTo                    `json:"applies-to"`
	Etag        string                       `json:"etag"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.AppliesTo = p.AppliesTo.clone()
	c.Settings = make(map[string][]json.RawMessage, len(p.Settings))
	for ns, settings := range p.Settings {
		cp := make([]json.RawMessage, len(settings))
		for i, s := range settings {
			cp[i] = append(json.RawMessage(nil), s...)
		}
		c.Settings[ns] = cp
	}
	return &c
}

// Index returns the index entry that lists p.
func (p *Profile) Index() IndexEntry {
	name := p.Name
	if name == "" {
		name = p.UID
	}
	return IndexEntry{ID: p.UID, DisplayName: name}
}

// IndexEntry is one row of the profile index.
type IndexEntry struct {
	ID          string `json:"url"`
	DisplayName string `json:"displayName"`
}

// Metadata is what the administrator supplies when saving a deploy.
type Metadata struct {
	Name        string
	Description string
	Users       []string
	Groups      []string
	Hosts       []string
	Hostgroups  []string
	Priority    int
}

// Assemble builds the profile for deploy d. Blank and repeated principals
// are dropped. The deploy itself is not modified.
func Assemble(d *session.Deploy, md Metadata) (*Profile, error) {
	name := strings.TrimSpace(md.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if md.Priority < 0 {
		return nil, fmt.Errorf("%w: priority must not be negative", ErrInvalidMetadata)
	}

	p := &Profile{
		UID:         d.ID,
		Name:        name,
		Description: md.Description,
		Priority:    md.Priority,
		Settings:    make(map[string][]json.RawMessage, len(d.Collectors)),
		AppliesTo: AppliesTo{
			Users:      CleanMembers(md.Users),
			Groups:     CleanMembers(md.Groups),
			Hosts:      CleanMembers(md.Hosts),
			Hostgroups: CleanMembers(md.Hostgroups),
		},
	}
	for ns, events := range d.Collectors {
		settings := make([]json.RawMessage, 0, len(events))
		for _, ev := range events {
			payload, err := ev.Payload()
			if err != nil {
				return nil, fmt.Errorf("setting %s in %s: %w", ev.Key, ns, err)
			}
			settings = append(settings, payload)
		}
		p.Settings[ns] = settings
	}

	etag, err := computeEtag(p)
	if err != nil {
		return nil, err
	}
	p.Etag = etag
	return p, nil
}

// CleanMembers trims entries, drops blank ones and repeats, and keeps the
// first-seen order.
func CleanMembers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// SplitMembers splits a comma-separated form field into cleaned members.
func SplitMembers(field string) []string {
	return CleanMembers(strings.Split(field, ","))
}

// computeEtag hashes everything but the etag itself.
func computeEtag(p *Profile) (string, error) {
	c := *p
	c.Etag = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("hashing profile %s: %w", p.UID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// Namespaces returns the profile's namespaces, sorted.
func (p *Profile) Namespaces() []string {
	out := make([]string, 0, len(p.Settings))
	for ns := range p.Settings {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
