package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/session"
)

// Validator checks the principals a profile is about to be applied to.
// Rejections should match ErrInvalidMetadata.
type Validator interface {
	Validate(ctx context.Context, to AppliesTo) error
}

// Notifier receives deploy_saved and deploy_discarded events.
type Notifier interface {
	Notify(ev session.Event)
}

// Assembler turns pending deploys into persisted profiles.
type Assembler struct {
	mu        sync.Mutex // one save or discard at a time
	deploys   *session.Deploys
	storage   Storage
	validator Validator
	notifier  Notifier
	logger    zerolog.Logger
}

func NewAssembler(deploys *session.Deploys, storage Storage) *Assembler {
	return &Assembler{
		deploys: deploys,
		storage: storage,
		logger:  log.With().Str("component", "profile").Logger(),
	}
}

// SetValidator installs an applies-to check run before anything is written.
func (a *Assembler) SetValidator(v Validator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validator = v
}

func (a *Assembler) SetNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = n
}

// Storage returns the backend profiles are persisted to.
func (a *Assembler) Storage() Storage {
	return a.storage
}

// Build saves deploy deployID as a profile described by md.
//
// The record is written first and the index entry appended second; the
// deploy is removed only after both succeeded. A record whose index entry
// could not be added is deleted again. On any failure the deploy stays
// pending so the save can be retried, possibly with different metadata.
// Unknown ids fail with session.ErrUnknownDeploy.
func (a *Assembler) Build(ctx context.Context, deployID string, md Metadata) (*Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.deploys.Get(deployID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownDeploy, deployID)
	}

	p, err := Assemble(d, md)
	if err != nil {
		return nil, err
	}
	if a.validator != nil {
		if err := a.validator.Validate(ctx, p.AppliesTo); err != nil {
			return nil, err
		}
	}

	if err := a.storage.WriteProfile(ctx, p); err != nil {
		a.logger.Error().Err(err).Str("deploy", deployID).Msg("writing profile failed, deploy kept")
		return nil, &StorageError{Op: "write profile", ID: deployID, Err: err}
	}
	if err := a.storage.AppendIndex(ctx, p.Index()); err != nil {
		a.logger.Error().Err(err).Str("deploy", deployID).Msg("updating index failed, deploy kept")
		// An unlisted record must not stay readable.
		if derr := a.storage.DeleteProfile(ctx, p.UID); derr != nil {
			a.logger.Error().Err(derr).Str("deploy", deployID).Msg("removing unlisted profile record failed")
		}
		return nil, &StorageError{Op: "append index", ID: deployID, Err: err}
	}

	a.deploys.Delete(deployID)
	if a.notifier != nil {
		a.notifier.Notify(session.Event{Type: session.EventDeploySaved, Host: d.Host, DeployID: deployID})
	}
	a.logger.Info().Str("deploy", deployID).Str("name", p.Name).Msg("profile saved")
	return p, nil
}

// Discard drops a pending deploy without saving it. Unknown ids succeed.
func (a *Assembler) Discard(deployID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.deploys.Delete(deployID) {
		return
	}
	if a.notifier != nil {
		a.notifier.Notify(session.Event{Type: session.EventDeployDiscarded, DeployID: deployID})
	}
	a.logger.Info().Str("deploy", deployID).Msg("deploy discarded")
}

// List returns the profile index.
func (a *Assembler) List(ctx context.Context) ([]IndexEntry, error) {
	return a.storage.ListIndex(ctx)
}

func (a *Assembler) Get(ctx context.Context, id string) (*Profile, error) {
	return a.storage.ReadProfile(ctx, id)
}

// Delete unlists a profile and then removes its record, so the index never
// points at a missing record.
func (a *Assembler) Delete(ctx context.Context, id string) error {
	if err := a.storage.RemoveFromIndex(ctx, id); err != nil {
		return &StorageError{Op: "remove index entry", ID: id, Err: err}
	}
	if err := a.storage.DeleteProfile(ctx, id); err != nil {
		return &StorageError{Op: "delete profile", ID: id, Err: err}
	}
	a.logger.Info().Str("profile", id).Msg("profile deleted")
	return nil
}
