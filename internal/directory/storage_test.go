package directory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasunDA/fc-admin/internal/changes"
	"github.com/KasunDA/fc-admin/internal/profile"
	"github.com/KasunDA/fc-admin/internal/session"
)

func TestStorageWriteCreatesThenUpdates(t *testing.T) {
	s := openTestStore(t)
	st := NewStorage(s)
	ctx := context.Background()
	p := testProfile()

	require.NoError(t, st.WriteProfile(ctx, p))
	p.Description = "again"
	require.NoError(t, st.WriteProfile(ctx, p))

	got, err := st.ReadProfile(ctx, p.UID)
	require.NoError(t, err)
	assert.Equal(t, "again", got.Description)
}

func TestStorageIndex(t *testing.T) {
	s := openTestStore(t)
	st := NewStorage(s)
	ctx := context.Background()

	assert.ErrorIs(t, st.AppendIndex(ctx, profile.IndexEntry{ID: "ghost"}), profile.ErrNotFound)

	p := testProfile()
	require.NoError(t, st.WriteProfile(ctx, p))
	require.NoError(t, st.AppendIndex(ctx, p.Index()))

	index, err := st.ListIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, []profile.IndexEntry{{ID: p.UID, DisplayName: p.Name}}, index)

	require.NoError(t, st.RemoveFromIndex(ctx, p.UID))
	require.NoError(t, st.DeleteProfile(ctx, p.UID))
	index, err = st.ListIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestValidator(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	v := NewValidator(s)
	ctx := context.Background()

	require.NoError(t, v.Validate(ctx, testProfile().AppliesTo))

	err := v.Validate(ctx, profile.AppliesTo{
		Users:  []string{"admin", "zed", "bob"},
		Groups: []string{"admins"},
		Hosts:  []string{"client9"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, profile.ErrInvalidMetadata)

	var mm *MissingMembersError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, map[Kind][]string{
		KindUser: {"bob", "zed"},
		KindHost: {"client9"},
	}, mm.Missing)
	assert.Equal(t, "unknown users bob, zed; hosts client9", err.Error())
}

type nopBridge struct{}

func (nopBridge) Start(context.Context, string) error { return nil }
func (nopBridge) Stop(context.Context) error          { return nil }

func TestAssemblerWithDirectoryBackend(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	deploys := session.NewDeploys()
	lc := session.NewLifecycle(nopBridge{}, deploys, []string{"org.gnome.gsettings"})
	require.NoError(t, lc.Start(ctx, "client1"))
	require.NoError(t, lc.RouteChange(changes.Event{
		Namespace: "org.gnome.gsettings",
		Key:       "/org/gnome/desktop/background/picture-uri",
		Value:     json.RawMessage(`"file:///usr/share/backgrounds/fc.png"`),
	}))
	id, err := lc.CommitSelection(map[string][]int{"org.gnome.gsettings": {0}})
	require.NoError(t, err)

	a := profile.NewAssembler(deploys, NewStorage(s))
	a.SetValidator(NewValidator(s))

	_, err = a.Build(ctx, id, profile.Metadata{Name: "desk", Users: []string{"stranger"}})
	assert.ErrorIs(t, err, profile.ErrInvalidMetadata)

	p, err := a.Build(ctx, id, profile.Metadata{Name: "desk", Users: []string{"admin"}, Hostgroups: []string{"ipaservers"}, Priority: 10})
	require.NoError(t, err)

	rule, err := s.GetProfileRule(ctx, p.UID)
	require.NoError(t, err)
	assert.Equal(t, 10, rule.Priority)
	assert.Equal(t, []string{"admin"}, rule.Users)
	assert.Equal(t, []string{"ipaservers"}, rule.Hostgroups)
}
