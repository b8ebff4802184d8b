// Package directory is an identity-directory profile backend. It keeps
// users, groups, hosts and hostgroups alongside desktop profiles and the
// rules that assign each profile to them, in a single SQLite database.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KasunDA/fc-admin/internal/profile"
)

var ErrDuplicateEntry = errors.New("duplicate entry")

// Kind is a principal type a profile can be applied to.
type Kind string

const (
	KindUser      Kind = "user"
	KindGroup     Kind = "group"
	KindHost      Kind = "host"
	KindHostgroup Kind = "hostgroup"
)

// Kinds lists every principal kind in display order.
var Kinds = []Kind{KindUser, KindGroup, KindHost, KindHostgroup}

// ParseKind accepts a kind name, singular or plural.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == string(k) || s == string(k)+"s" {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown principal kind %q", s)
}

// Summary is one row of GetProfiles.
type Summary struct {
	UID         string `json:"uid"`
	Description string `json:"description"`
}

// Rule assigns a profile to principals with a priority.
type Rule struct {
	Users      []string `json:"users"`
	Groups     []string `json:"groups"`
	Hosts      []string `json:"hosts"`
	Hostgroups []string `json:"hostgroups"`
	Priority   int      `json:"priority"`
}

// AppliesTo returns the rule's members.
func (r Rule) AppliesTo() profile.AppliesTo {
	return profile.AppliesTo{
		Users:      append([]string{}, r.Users...),
		Groups:     append([]string{}, r.Groups...),
		Hosts:      append([]string{}, r.Hosts...),
		Hostgroups: append([]string{}, r.Hostgroups...),
	}
}

func ruleFor(p *profile.Profile) Rule {
	return Rule{
		Users:      nonNil(p.AppliesTo.Users),
		Groups:     nonNil(p.AppliesTo.Groups),
		Hosts:      nonNil(p.AppliesTo.Hosts),
		Hostgroups: nonNil(p.AppliesTo.Hostgroups),
		Priority:   p.Priority,
	}
}

// profileData is the JSON stored in deskprofiles.data.
type profileData struct {
	Name     string                       `json:"name"`
	Settings map[string][]json.RawMessage `json:"settings"`
	Etag     string                       `json:"etag"`
}

// Store is the directory database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the directory database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory db dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS principals (
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (kind, name)
	);
	CREATE TABLE IF NOT EXISTS deskprofiles (
		uid         TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		data        TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS deskprofilerules (
		uid               TEXT PRIMARY KEY REFERENCES deskprofiles(uid) ON DELETE CASCADE,
		priority          INTEGER NOT NULL DEFAULT 0,
		member_users      TEXT NOT NULL DEFAULT '[]',
		member_groups     TEXT NOT NULL DEFAULT '[]',
		member_hosts      TEXT NOT NULL DEFAULT '[]',
		member_hostgroups TEXT NOT NULL DEFAULT '[]'
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init directory schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddPrincipal registers a principal. Adding an existing one is a no-op.
func (s *Store) AddPrincipal(ctx context.Context, kind Kind, name string) error {
	if name == "" {
		return fmt.Errorf("add %s: empty name", kind)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO principals (kind, name) VALUES (?, ?)`, string(kind), name)
	if err != nil {
		return fmt.Errorf("add %s %s: %w", kind, name, err)
	}
	return nil
}

// Principals lists the names of one kind, sorted.
func (s *Store) Principals(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM principals WHERE kind = ? ORDER BY name`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) exists(ctx context.Context, kind Kind, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM principals WHERE kind = ? AND name = ?`, string(kind), name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", kind, name, err)
	}
	return n > 0, nil
}

func (s *Store) CheckUserExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, KindUser, name)
}

func (s *Store) CheckGroupExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, KindGroup, name)
}

func (s *Store) CheckHostExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, KindHost, name)
}

func (s *Store) CheckHostgroupExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, KindHostgroup, name)
}

func (s *Store) CheckProfileExists(ctx context.Context, uid string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deskprofiles WHERE uid = ?`, uid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check profile %s: %w", uid, err)
	}
	return n > 0, nil
}

// CreateProfile stores p and its rule. It fails with ErrDuplicateEntry if
// p.UID is already present.
func (s *Store) CreateProfile(ctx context.Context, p *profile.Profile) error {
	data, err := encodeProfile(p)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM deskprofiles WHERE uid = ?`, p.UID).Scan(&n); err != nil {
			return fmt.Errorf("create profile %s: %w", p.UID, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: profile %s", ErrDuplicateEntry, p.UID)
		}
		now := time.Now().UTC().Unix()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deskprofiles (uid, description, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			p.UID, p.Description, data, now, now); err != nil {
			return fmt.Errorf("create profile %s: %w", p.UID, err)
		}
		return insertRule(ctx, tx, p.UID, ruleFor(p))
	})
}

// UpdateProfile overwrites p and its rule in place. Unknown uids fail with
// profile.ErrNotFound.
func (s *Store) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	data, err := encodeProfile(p)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE deskprofiles SET description = ?, data = ?, updated_at = ? WHERE uid = ?`,
			p.Description, data, time.Now().UTC().Unix(), p.UID)
		if err != nil {
			return fmt.Errorf("update profile %s: %w", p.UID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", profile.ErrNotFound, p.UID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM deskprofilerules WHERE uid = ?`, p.UID); err != nil {
			return fmt.Errorf("update rule %s: %w", p.UID, err)
		}
		return insertRule(ctx, tx, p.UID, ruleFor(p))
	})
}

// DeleteProfile removes a profile and its rule. Unknown uids are ignored.
func (s *Store) DeleteProfile(ctx context.Context, uid string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM deskprofilerules WHERE uid = ?`, uid); err != nil {
			return fmt.Errorf("delete rule %s: %w", uid, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM deskprofiles WHERE uid = ?`, uid); err != nil {
			return fmt.Errorf("delete profile %s: %w", uid, err)
		}
		return nil
	})
}

// GetProfile returns the profile with its rule folded back into AppliesTo
// and Priority.
func (s *Store) GetProfile(ctx context.Context, uid string) (*profile.Profile, error) {
	var description, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT description, data FROM deskprofiles WHERE uid = ?`, uid).Scan(&description, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", profile.ErrNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	var pd profileData
	if err := json.Unmarshal([]byte(data), &pd); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", uid, err)
	}
	rule, err := s.GetProfileRule(ctx, uid)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return nil, err
	}
	p := &profile.Profile{
		UID:         uid,
		Name:        pd.Name,
		Description: description,
		Priority:    rule.Priority,
		Settings:    pd.Settings,
		AppliesTo:   rule.AppliesTo(),
		Etag:        pd.Etag,
	}
	if p.Settings == nil {
		p.Settings = map[string][]json.RawMessage{}
	}
	return p, nil
}

// GetProfiles returns (uid, description) for every profile, sorted by uid.
func (s *Store) GetProfiles(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, description FROM deskprofiles ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.UID, &sum.Description); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// listNames returns an index entry per profile, oldest first.
func (s *Store) listNames(ctx context.Context) ([]profile.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, data FROM deskprofiles ORDER BY created_at, uid`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	out := []profile.IndexEntry{}
	for rows.Next() {
		var uid, data string
		if err := rows.Scan(&uid, &data); err != nil {
			return nil, err
		}
		var pd profileData
		if err := json.Unmarshal([]byte(data), &pd); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", uid, err)
		}
		p := profile.Profile{UID: uid, Name: pd.Name}
		out = append(out, p.Index())
	}
	return out, rows.Err()
}

// GetProfileRule returns the rule that assigns profile uid.
func (s *Store) GetProfileRule(ctx context.Context, uid string) (Rule, error) {
	var users, groups, hosts, hostgroups string
	var rule Rule
	err := s.db.QueryRowContext(ctx, `
		SELECT priority, member_users, member_groups, member_hosts, member_hostgroups
		FROM deskprofilerules WHERE uid = ?`, uid).
		Scan(&rule.Priority, &users, &groups, &hosts, &hostgroups)
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, fmt.Errorf("%w: rule %s", profile.ErrNotFound, uid)
	}
	if err != nil {
		return Rule{}, fmt.Errorf("get rule %s: %w", uid, err)
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{users, &rule.Users},
		{groups, &rule.Groups},
		{hosts, &rule.Hosts},
		{hostgroups, &rule.Hostgroups},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return Rule{}, fmt.Errorf("decode rule %s: %w", uid, err)
		}
	}
	return rule, nil
}

func insertRule(ctx context.Context, tx *sql.Tx, uid string, rule Rule) error {
	enc := func(v []string) string {
		data, _ := json.Marshal(nonNil(v))
		return string(data)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deskprofilerules
			(uid, priority, member_users, member_groups, member_hosts, member_hostgroups)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uid, rule.Priority, enc(rule.Users), enc(rule.Groups), enc(rule.Hosts), enc(rule.Hostgroups))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", uid, err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func encodeProfile(p *profile.Profile) (string, error) {
	settings := p.Settings
	if settings == nil {
		settings = map[string][]json.RawMessage{}
	}
	data, err := json.Marshal(profileData{Name: p.Name, Settings: settings, Etag: p.Etag})
	if err != nil {
		return "", fmt.Errorf("encode profile %s: %w", p.UID, err)
	}
	return string(data), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
