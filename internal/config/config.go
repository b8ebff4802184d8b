package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/KasunDA/fc-admin/internal/session"
)

// Environment variables override file values. They are read after an
// optional .env file next to the config file has been loaded.
const envPrefix = "FC_ADMIN_"

// Namespaces captured when the configuration does not name any.
var DefaultNamespaces = []string{"org.gnome.gsettings", "org.gnome.online-accounts"}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Profiles ProfilesConfig `yaml:"profiles"`
	Session  SessionConfig  `yaml:"session"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Mock     MockConfig     `yaml:"mock"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	Host              string        `yaml:"host"`
	DataDir           string        `yaml:"data_dir"` // static frontend; empty serves the built-in page
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	MaxConnections    int           `yaml:"max_connections"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

type ProfilesConfig struct {
	Dir         string `yaml:"dir"`
	Backend     string `yaml:"backend"` // "file" or "directory"
	DirectoryDB string `yaml:"directory_db"`
	// ValidateMembers rejects saves naming principals the directory does
	// not know. Only used with the directory backend.
	ValidateMembers bool `yaml:"validate_members"`
}

type SessionConfig struct {
	Namespaces []string `yaml:"namespaces"`
}

type BridgeConfig struct {
	Mode           string        `yaml:"mode"` // "proxy" or "websockify"
	AgentScheme    string        `yaml:"agent_scheme"`
	AgentPort      int           `yaml:"agent_port"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	TargetPort     int           `yaml:"target_port"`
	ListenHost     string        `yaml:"listen_host"`
	ListenPort     int           `yaml:"listen_port"`
	WebsockifyPath string        `yaml:"websockify_path"`
	StopGrace      time.Duration `yaml:"stop_grace"`
}

type AgentConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	User              string        `yaml:"user"`
	Display           string        `yaml:"display"`
	DisplayCommand    []string      `yaml:"display_command"`
	SessionCommand    []string      `yaml:"session_command"`
	LoggerCommand     []string      `yaml:"logger_command"`
	WebsocketCommand  []string      `yaml:"websocket_command"`
	StartupDelay      time.Duration `yaml:"startup_delay"`
	StopGrace         time.Duration `yaml:"stop_grace"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "auto", "console" or "json"
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type PrivacyConfig struct {
	MaskHosts        bool     `yaml:"mask_hosts"`
	RedactNamespaces []string `yaml:"redact_namespaces"`
}

type MockConfig struct {
	ChangeInterval time.Duration `yaml:"change_interval"`
}

// NewPrivacyFilter converts the config into a session.PrivacyFilter.
func (p PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskHosts:        p.MaskHosts,
		RedactNamespaces: append([]string(nil), p.RedactNamespaces...),
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8181,
			Host:              "127.0.0.1",
			MaxConnections:    100,
			SnapshotInterval:  5 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Profiles: ProfilesConfig{
			Dir:         "profiles",
			Backend:     "file",
			DirectoryDB: "directory.db",
		},
		Session: SessionConfig{
			Namespaces: append([]string(nil), DefaultNamespaces...),
		},
		Bridge: BridgeConfig{
			Mode:           "proxy",
			AgentScheme:    "http",
			AgentPort:      8182,
			ProbeTimeout:   10 * time.Second,
			TargetPort:     5935,
			ListenHost:     "0.0.0.0",
			ListenPort:     8989,
			WebsockifyPath: "websockify",
			StopGrace:      3 * time.Second,
		},
		Agent: AgentConfig{
			Host:              "localhost",
			Port:              8182,
			User:              "fc-user",
			Display:           ":10",
			DisplayCommand:    []string{"Xspice", ":10", "--disable-ticketing", "--port", "8280"},
			SessionCommand:    []string{"gnome-session"},
			LoggerCommand:     []string{"fcmdr-logger"},
			WebsocketCommand:  []string{"websockify", "localhost:8281", "localhost:8280"},
			StartupDelay:      time.Second,
			StopGrace:         3 * time.Second,
			HealthCheckPeriod: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Mock: MockConfig{
			ChangeInterval: 2 * time.Second,
		},
	}
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg
}

// Load reads the YAML file at path over the built-in defaults, then applies
// .env and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	loadDotEnv(filepath.Dir(path))
	cfg.applyEnv()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	checkPort := func(name string, port int) {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: invalid port %d", name, port))
		}
	}
	checkPort("server.port", c.Server.Port)
	checkPort("bridge.agent_port", c.Bridge.AgentPort)
	checkPort("bridge.target_port", c.Bridge.TargetPort)
	checkPort("bridge.listen_port", c.Bridge.ListenPort)
	checkPort("agent.port", c.Agent.Port)

	switch c.Profiles.Backend {
	case "file", "directory":
	default:
		errs = append(errs, fmt.Errorf("profiles.backend: unknown backend %q", c.Profiles.Backend))
	}
	switch c.Bridge.Mode {
	case "proxy", "websockify":
	default:
		errs = append(errs, fmt.Errorf("bridge.mode: unknown mode %q", c.Bridge.Mode))
	}
	if len(c.Session.Namespaces) == 0 {
		errs = append(errs, errors.New("session.namespaces: at least one namespace is required"))
	}
	if c.Bridge.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("bridge.probe_timeout: must be positive"))
	}
	if c.Server.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("server.snapshot_interval: must be positive"))
	}
	if c.Mock.ChangeInterval <= 0 {
		errs = append(errs, errors.New("mock.change_interval: must be positive"))
	}
	return errors.Join(errs...)
}

// PrimaryNamespace is the namespace legacy single-namespace routes use.
func (c *Config) PrimaryNamespace() string {
	if len(c.Session.Namespaces) == 0 {
		return DefaultNamespaces[0]
	}
	return c.Session.Namespaces[0]
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// resolvePaths makes relative storage paths relative to the config file.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Profiles.Dir, &c.Profiles.DirectoryDB, &c.Server.DataDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// loadDotEnv loads dir/.env if present. Variables already set in the
// environment win.
func loadDotEnv(dir string) {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}
}

func (c *Config) applyEnv() {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("HOST", &c.Server.Host)
	num("PORT", &c.Server.Port)
	str("DATA_DIR", &c.Server.DataDir)
	str("PROFILES_DIR", &c.Profiles.Dir)
	str("PROFILES_BACKEND", &c.Profiles.Backend)
	str("DIRECTORY_DB", &c.Profiles.DirectoryDB)
	str("BRIDGE_MODE", &c.Bridge.Mode)
	num("AGENT_PORT", &c.Bridge.AgentPort)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	if v, ok := os.LookupEnv(envPrefix + "NAMESPACES"); ok && v != "" {
		var ns []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ns = append(ns, part)
			}
		}
		c.Session.Namespaces = ns
	}
}

// Diff returns human-readable descriptions of the reloadable settings that
// differ between old and new.
func Diff(old, new *Config) []string {
	var changes []string
	str := func(name, a, b string) {
		if a != b {
			changes = append(changes, fmt.Sprintf("%s: %s → %s", name, a, b))
		}
	}
	list := func(name string, a, b []string) {
		if strings.Join(a, ",") != strings.Join(b, ",") {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", name, fmtList(a), fmtList(b)))
		}
	}
	flag := func(name string, a, b bool) {
		if a != b {
			changes = append(changes, fmt.Sprintf("%s: %t → %t", name, a, b))
		}
	}

	str("logging.level", old.Logging.Level, new.Logging.Level)
	list("session.namespaces", old.Session.Namespaces, new.Session.Namespaces)
	flag("privacy.mask_hosts", old.Privacy.MaskHosts, new.Privacy.MaskHosts)
	list("privacy.redact_namespaces", old.Privacy.RedactNamespaces, new.Privacy.RedactNamespaces)
	if old.Bridge.ProbeTimeout != new.Bridge.ProbeTimeout {
		changes = append(changes, fmt.Sprintf("bridge.probe_timeout: %s → %s", old.Bridge.ProbeTimeout, new.Bridge.ProbeTimeout))
	}
	return changes
}

func fmtList(v []string) string {
	return "[" + strings.Join(v, " ") + "]"
}
