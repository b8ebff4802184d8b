package profile

import "context"

// Storage persists profiles and the index that lists them.
//
// WriteProfile must be durable before it returns: callers append the index
// entry only afterwards, so an indexed profile always has a readable record.
type Storage interface {
	ListIndex(ctx context.Context) ([]IndexEntry, error)
	// AppendIndex adds entry, replacing any entry with the same ID.
	AppendIndex(ctx context.Context, entry IndexEntry) error
	RemoveFromIndex(ctx context.Context, id string) error
	WriteProfile(ctx context.Context, p *Profile) error
	// ReadProfile returns ErrNotFound for unknown ids.
	ReadProfile(ctx context.Context, id string) (*Profile, error)
	// DeleteProfile tolerates unknown ids.
	DeleteProfile(ctx context.Context, id string) error
}
