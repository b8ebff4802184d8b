// Package mock stands in for a managed host: a bridge that connects to
// nothing and a generator that plays back desktop setting changes while a
// capture session is active.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/changes"
	"github.com/KasunDA/fc-admin/internal/session"
)

// Bridge satisfies session.Bridge without touching the network.
type Bridge struct {
	mu   sync.Mutex
	host string
}

func (b *Bridge) Start(ctx context.Context, host string) error {
	b.mu.Lock()
	b.host = host
	b.mu.Unlock()
	log.Info().Str("component", "mock").Str("host", host).Msg("mock bridge started")
	return nil
}

func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.host = ""
	b.mu.Unlock()
	return nil
}

// Host returns the host of the running mock session, or "".
func (b *Bridge) Host() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host
}

type mockSetting struct {
	schema string
	key    string
	values []string // GVariant text, cycled through
}

// gsettings keys an administrator typically touches while building a
// desktop profile.
var gsettings = []mockSetting{
	{"org.gnome.desktop.background", "picture-uri", []string{
		"'file:///usr/share/backgrounds/gnome/adwaita-l.jpg'",
		"'file:///usr/share/backgrounds/corp/wallpaper.png'",
	}},
	{"org.gnome.desktop.interface", "clock-format", []string{"'24h'", "'12h'"}},
	{"org.gnome.desktop.interface", "gtk-theme", []string{"'Adwaita'", "'Adwaita-dark'", "'HighContrast'"}},
	{"org.gnome.desktop.interface", "text-scaling-factor", []string{"1.0", "1.25", "1.5"}},
	{"org.gnome.desktop.screensaver", "lock-enabled", []string{"true", "false"}},
	{"org.gnome.desktop.screensaver", "lock-delay", []string{"uint32 0", "uint32 300"}},
	{"org.gnome.desktop.session", "idle-delay", []string{"uint32 300", "uint32 600", "uint32 900"}},
	{"org.gnome.desktop.lockdown", "disable-command-line", []string{"true", "false"}},
	{"org.gnome.shell", "favorite-apps", []string{
		"['firefox.desktop', 'org.gnome.Nautilus.desktop']",
		"['firefox.desktop', 'org.gnome.Terminal.desktop', 'libreoffice-writer.desktop']",
	}},
	{"org.gnome.desktop.wm.preferences", "button-layout", []string{"'appmenu:minimize,maximize,close'", "'close:appmenu'"}},
}

// keyPath turns a schema and key into the dconf path the logger reports.
func keyPath(schema, key string) string {
	return "/" + strings.ReplaceAll(schema, ".", "/") + "/" + key
}

// Generator routes synthetic changes into the lifecycle while a session is
// active.
type Generator struct {
	lc        *session.Lifecycle
	namespace string
	interval  time.Duration
	rng       *rand.Rand
	logger    zerolog.Logger

	mu    sync.Mutex
	ticks int
	next  map[string]int // position in each setting's values
}

func NewGenerator(lc *session.Lifecycle, namespace string, interval time.Duration) *Generator {
	return &Generator{
		lc:        lc,
		namespace: namespace,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    log.With().Str("component", "mock").Logger(),
		next:      make(map[string]int),
	}
}

// Start runs the generator until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Tick emits one change when a session is active. It reports whether a
// change was routed.
func (g *Generator) Tick() bool {
	if g.lc.State() != session.Active {
		return false
	}
	ev, err := g.nextChange()
	if err != nil {
		g.logger.Error().Err(err).Msg("building mock change")
		return false
	}
	if err := g.lc.RouteChange(ev); err != nil {
		// The session may have stopped between the state check and here.
		g.logger.Debug().Err(err).Str("key", ev.Key).Msg("mock change dropped")
		return false
	}
	return true
}

func (g *Generator) nextChange() (changes.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticks++

	s := gsettings[g.rng.Intn(len(gsettings))]
	path := keyPath(s.schema, s.key)
	value := s.values[g.next[path]%len(s.values)]
	g.next[path]++

	body, err := json.Marshal(map[string]string{
		"key":    path,
		"value":  value,
		"schema": s.schema,
	})
	if err != nil {
		return changes.Event{}, fmt.Errorf("marshal change: %w", err)
	}
	return changes.ParsePayload(g.namespace, body)
}
