package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ResolveConfigPath picks the config file path: CLI > env > default.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := ResolveConfigPath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	ApplyOverrides(cfg, env, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return NewResolved(cfg, cfgPath), nil
}

// ApplyOverrides applies environment then CLI overrides to cfg in place.
func ApplyOverrides(cfg *Config, env EnvOverrides, cli CLIOverrides) {
	if env.DBPath != "" {
		cfg.Store.DBPath = env.DBPath
	}

	if env.RemoteURL != "" {
		cfg.Remote.BaseURL = env.RemoteURL
	}

	if cli.DBPath != nil {
		cfg.Store.DBPath = *cli.DBPath
	}

	if cli.RemoteURL != nil {
		cfg.Remote.BaseURL = *cli.RemoteURL
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}
}

// Reload re-reads the config file behind h, re-applies the same overrides
// and swaps the result in. On error the held config is left unchanged.
func Reload(h *Holder, env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfg, err := LoadOrDefault(h.Path())
	if err != nil {
		return nil, err
	}

	ApplyOverrides(cfg, env, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := NewResolved(cfg, h.Path())
	h.Update(resolved)

	return resolved, nil
}

// dataDirFor returns the directory that holds files belonging to dbPath, so
// daemons on different databases do not share a PID file.
func dataDirFor(dbPath string) string {
	if dbPath == "" {
		return DefaultDataDir()
	}

	return filepath.Dir(dbPath)
}
