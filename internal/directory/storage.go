package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/KasunDA/fc-admin/internal/profile"
)

// Storage adapts a Store to profile.Storage. The deskprofiles table is its
// own index, so the index operations only check their input.
type Storage struct {
	store *Store
}

var _ profile.Storage = (*Storage)(nil)

func NewStorage(store *Store) *Storage {
	return &Storage{store: store}
}

func (s *Storage) ListIndex(ctx context.Context) ([]profile.IndexEntry, error) {
	return s.store.listNames(ctx)
}

// AppendIndex succeeds once the profile record exists.
func (s *Storage) AppendIndex(ctx context.Context, entry profile.IndexEntry) error {
	ok, err := s.store.CheckProfileExists(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", profile.ErrNotFound, entry.ID)
	}
	return nil
}

func (s *Storage) RemoveFromIndex(ctx context.Context, id string) error {
	return nil
}

// WriteProfile creates the profile, or overwrites it when a previous save of
// the same deploy already got as far as the record.
func (s *Storage) WriteProfile(ctx context.Context, p *profile.Profile) error {
	ok, err := s.store.CheckProfileExists(ctx, p.UID)
	if err != nil {
		return err
	}
	if ok {
		return s.store.UpdateProfile(ctx, p)
	}
	return s.store.CreateProfile(ctx, p)
}

func (s *Storage) ReadProfile(ctx context.Context, id string) (*profile.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

func (s *Storage) DeleteProfile(ctx context.Context, id string) error {
	return s.store.DeleteProfile(ctx, id)
}

// MissingMembersError lists applies-to members unknown to the directory.
// It matches profile.ErrInvalidMetadata.
type MissingMembersError struct {
	Missing map[Kind][]string
}

func (e *MissingMembersError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, k := range Kinds {
		if names := e.Missing[k]; len(names) > 0 {
			parts = append(parts, fmt.Sprintf("%ss %s", k, strings.Join(names, ", ")))
		}
	}
	return "unknown " + strings.Join(parts, "; ")
}

func (e *MissingMembersError) Is(target error) bool {
	return target == profile.ErrInvalidMetadata
}

// Validator rejects profiles applied to principals the directory does not
// know.
type Validator struct {
	store *Store
}

var _ profile.Validator = (*Validator)(nil)

func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

func (v *Validator) Validate(ctx context.Context, to profile.AppliesTo) error {
	missing := map[Kind][]string{}
	for _, group := range []struct {
		kind  Kind
		names []string
	}{
		{KindUser, to.Users},
		{KindGroup, to.Groups},
		{KindHost, to.Hosts},
		{KindHostgroup, to.Hostgroups},
	} {
		for _, name := range group.names {
			ok, err := v.store.exists(ctx, group.kind, name)
			if err != nil {
				return err
			}
			if !ok {
				missing[group.kind] = append(missing[group.kind], name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	for k := range missing {
		sort.Strings(missing[k])
	}
	return &MissingMembersError{Missing: missing}
}
