// Package config loads the relayer's configuration from a TOML file and
// overlays environment variables, matching the TX_SITTER__* / TX_SITTER_EXT__*
// scheme documented in spec.md §6. Structure mirrors the original
// implementation's src/config.rs.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration object.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Server   ServerConfig   `toml:"server"`
	RPC      RPCConfig      `toml:"rpc"`
	Database DatabaseConfig `toml:"database"`
	Keys     KeysConfig     `toml:"keys"`
}

// ServiceConfig holds tunables for the background lifecycle loops.
type ServiceConfig struct {
	// EscalationInterval is how long a pending attempt may age before the
	// escalator resubmits it at a higher fee (spec.md §4.6).
	EscalationInterval Duration `toml:"escalation_interval"`
}

// ServerConfig configures the HTTP admission API.
type ServerConfig struct {
	Host        string `toml:"host"`
	DisableAuth bool   `toml:"disable_auth"`
	AdminUser   string `toml:"admin_user"`
	AdminPass   string `toml:"admin_pass"`
}

// Addr validates and returns the host:port the server binds to.
func (s ServerConfig) Addr() (string, error) {
	if _, _, err := net.SplitHostPort(s.Host); err != nil {
		return "", fmt.Errorf("invalid server.host %q: %w", s.Host, err)
	}
	return s.Host, nil
}

// RPCConfig is a list of chain RPC endpoints, loadable from TOML or
// TX_SITTER_EXT__RPC__RPCS. The service does not dial these entries: chain
// gateways are connected from the networks registered in storage
// (app.App.DialNetworks).
type RPCConfig struct {
	RPCs []string `toml:"rpcs"`
}

// DatabaseConfig is the Postgres connection string.
type DatabaseConfig struct {
	ConnectionString string `toml:"connection_string"`
}

// KeysConfig selects the key custody backend (spec.md §4.2).
type KeysConfig struct {
	Kind  string          `toml:"kind"` // "local" | "kms"
	Kms   KmsKeysConfig   `toml:"kms"`
	Local LocalKeysConfig `toml:"local"`
}

type KmsKeysConfig struct {
	Region string `toml:"region"`
}

type LocalKeysConfig struct{}

// Duration wraps time.Duration so it can be parsed from TOML as a
// humantime-style string ("2s", "30m"), matching humantime_serde in the
// original config.rs.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the conservative production defaults, overridden by
// whatever the caller loads on top.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			EscalationInterval: Duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Host:        "0.0.0.0:3000",
			DisableAuth: false,
		},
		Keys: KeysConfig{Kind: "local"},
	}
}

// Load reads a TOML file at path (if non-empty) on top of Default, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overlays TX_SITTER__SECTION__FIELD style scalar overrides and
// TX_SITTER_EXT__SECTION__FIELD comma-separated list overrides, per
// spec.md §6.
func applyEnv(cfg *Config) error {
	const (
		scalarPrefix = "TX_SITTER__"
		listPrefix   = "TX_SITTER_EXT__"
	)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(key, listPrefix):
			path := strings.Split(strings.TrimPrefix(key, listPrefix), "__")
			items := splitNonEmpty(value, ",")
			if err := setListField(cfg, path, items); err != nil {
				return fmt.Errorf("env override %s: %w", key, err)
			}
		case strings.HasPrefix(key, scalarPrefix):
			path := strings.Split(strings.TrimPrefix(key, scalarPrefix), "__")
			if err := setScalarField(cfg, path, value); err != nil {
				return fmt.Errorf("env override %s: %w", key, err)
			}
		}
	}

	return nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setListField(cfg *Config, path []string, items []string) error {
	if len(path) == 2 && strings.EqualFold(path[0], "rpc") && strings.EqualFold(path[1], "rpcs") {
		cfg.RPC.RPCs = items
		return nil
	}
	return fmt.Errorf("unknown list config path %v", path)
}

func setScalarField(cfg *Config, path []string, value string) error {
	if len(path) != 2 {
		return fmt.Errorf("unsupported config path %v", path)
	}
	section, field := strings.ToLower(path[0]), strings.ToLower(path[1])

	switch section {
	case "service":
		if field == "escalation_interval" {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			cfg.Service.EscalationInterval = Duration{d}
			return nil
		}
	case "server":
		switch field {
		case "host":
			cfg.Server.Host = value
			return nil
		case "disable_auth":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			cfg.Server.DisableAuth = b
			return nil
		case "admin_user":
			cfg.Server.AdminUser = value
			return nil
		case "admin_pass":
			cfg.Server.AdminPass = value
			return nil
		}
	case "database":
		if field == "connection_string" {
			cfg.Database.ConnectionString = value
			return nil
		}
	case "keys":
		switch field {
		case "kind":
			cfg.Keys.Kind = value
			return nil
		case "region":
			cfg.Keys.Kms.Region = value
			return nil
		}
	}

	return fmt.Errorf("unknown config path %s.%s", section, field)
}
