package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
server:
  port: 9090
  host: "0.0.0.0"
profiles:
  dir: store
  backend: directory
session:
  namespaces:
    - org.gnome.gsettings
    - org.freedesktop.NetworkManager
bridge:
  probe_timeout: 2s
privacy:
  mask_hosts: true
  redact_namespaces:
    - "org.gnome.online-*"
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Profiles.Backend != "directory" {
		t.Errorf("Profiles.Backend = %q, want directory", cfg.Profiles.Backend)
	}
	if want := filepath.Join(dir, "store"); cfg.Profiles.Dir != want {
		t.Errorf("Profiles.Dir = %q, want %q", cfg.Profiles.Dir, want)
	}
	if got := strings.Join(cfg.Session.Namespaces, ","); got != "org.gnome.gsettings,org.freedesktop.NetworkManager" {
		t.Errorf("Session.Namespaces = %v", cfg.Session.Namespaces)
	}
	if cfg.Bridge.ProbeTimeout != 2*time.Second {
		t.Errorf("Bridge.ProbeTimeout = %s, want 2s", cfg.Bridge.ProbeTimeout)
	}
	if !cfg.Privacy.MaskHosts {
		t.Error("Privacy.MaskHosts = false, want true")
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Bridge.AgentPort != 8182 {
		t.Errorf("Bridge.AgentPort = %d, want default 8182", cfg.Bridge.AgentPort)
	}
	if cfg.Agent.Display != ":10" {
		t.Errorf("Agent.Display = %q, want default :10", cfg.Agent.Display)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want default 8181", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Profiles.Backend != "file" {
		t.Errorf("Profiles.Backend = %q, want default file", cfg.Profiles.Backend)
	}
	if len(cfg.Session.Namespaces) != len(DefaultNamespaces) {
		t.Errorf("Session.Namespaces = %v, want %v", cfg.Session.Namespaces, DefaultNamespaces)
	}
	if cfg.PrimaryNamespace() != "org.gnome.gsettings" {
		t.Errorf("PrimaryNamespace() = %q", cfg.PrimaryNamespace())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), ":::not valid yaml")

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad backend", "profiles:\n  backend: ldap\n", "profiles.backend"},
		{"bad bridge mode", "bridge:\n  mode: vnc\n", "bridge.mode"},
		{"no namespaces", "session:\n  namespaces: []\n", "session.namespaces"},
		{"zero probe timeout", "bridge:\n  probe_timeout: 0s\n", "bridge.probe_timeout"},
		{"zero snapshot interval", "server:\n  snapshot_interval: 0s\n", "server.snapshot_interval"},
		{"negative change interval", "mock:\n  change_interval: -1s\n", "mock.change_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FC_ADMIN_PORT", "9191")
	t.Setenv("FC_ADMIN_NAMESPACES", "a.b, c.d ,")
	t.Setenv("FC_ADMIN_PROFILES_BACKEND", "directory")

	cfg, err := Load(writeConfig(t, t.TempDir(), "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191 from env", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Session.Namespaces, ","); got != "a.b,c.d" {
		t.Errorf("Session.Namespaces = %q, want a.b,c.d", got)
	}
	if cfg.Profiles.Backend != "directory" {
		t.Errorf("Profiles.Backend = %q, want directory", cfg.Profiles.Backend)
	}
}

func TestDotEnvNextToConfig(t *testing.T) {
	// Register a restore, then make sure the variable is really unset so the
	// .env file is allowed to provide it.
	t.Setenv("FC_ADMIN_LOG_LEVEL", "")
	os.Unsetenv("FC_ADMIN_LOG_LEVEL")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FC_ADMIN_LOG_LEVEL=debug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(writeConfig(t, dir, "logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from .env", cfg.Logging.Level)
	}
}

func TestNewPrivacyFilter(t *testing.T) {
	pc := PrivacyConfig{
		MaskHosts:        true,
		RedactNamespaces: []string{"org.gnome.online-accounts"},
	}

	pf := pc.NewPrivacyFilter()

	if !pf.MaskHosts {
		t.Error("MaskHosts not copied")
	}
	if len(pf.RedactNamespaces) != 1 || pf.RedactNamespaces[0] != "org.gnome.online-accounts" {
		t.Errorf("RedactNamespaces = %v", pf.RedactNamespaces)
	}

	pc.RedactNamespaces[0] = "changed"
	if pf.RedactNamespaces[0] != "org.gnome.online-accounts" {
		t.Error("filter shares the config slice")
	}
}

func TestNewPrivacyFilterZeroValue(t *testing.T) {
	pc := PrivacyConfig{}
	pf := pc.NewPrivacyFilter()

	if !pf.IsNoop() {
		t.Error("zero-value PrivacyConfig should produce a noop filter")
	}
}

func TestDiffNoChanges(t *testing.T) {
	a := defaultConfig()
	b := defaultConfig()
	if changes := Diff(a, b); len(changes) != 0 {
		t.Errorf("Diff of identical configs = %v, want empty", changes)
	}
}

func TestDiffDetectsChanges(t *testing.T) {
	old := defaultConfig()
	new := defaultConfig()

	new.Logging.Level = "debug"
	new.Session.Namespaces = []string{"org.gnome.gsettings"}
	new.Privacy.MaskHosts = true
	new.Privacy.RedactNamespaces = []string{"org.gnome.online-accounts"}
	new.Bridge.ProbeTimeout = 3 * time.Second

	changes := Diff(old, new)
	found := map[string]bool{}
	for _, c := range changes {
		found[c] = true
	}

	want := []string{
		"logging.level: info → debug",
		"session.namespaces: [org.gnome.gsettings org.gnome.online-accounts] → [org.gnome.gsettings]",
		"privacy.mask_hosts: false → true",
		"privacy.redact_namespaces: [] → [org.gnome.online-accounts]",
		"bridge.probe_timeout: 10s → 3s",
	}
	for _, w := range want {
		if !found[w] {
			t.Errorf("Missing expected change: %q\nGot: %v", w, changes)
		}
	}
	if len(changes) != len(want) {
		t.Errorf("Diff returned %d changes, want %d: %v", len(changes), len(want), changes)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, cfg, func(old, new *Config) { reloaded <- new })
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	defer w.Stop()

	writeConfig(t, dir, "logging:\n  level: debug\n")

	select {
	case got := <-reloaded:
		if got.Logging.Level != "debug" {
			t.Errorf("reloaded Logging.Level = %q, want debug", got.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	if w.Current().Logging.Level != "debug" {
		t.Errorf("Current().Logging.Level = %q, want debug", w.Current().Logging.Level)
	}
}

func TestWatcherKeepsConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	called := false
	w, err := NewWatcher(path, cfg, func(old, new *Config) { called = true })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeConfig(t, dir, ":::not valid yaml")
	w.Reload()

	if called {
		t.Error("callback ran for an invalid config")
	}
	if w.Current() != cfg {
		t.Error("invalid reload replaced the current config")
	}
}
