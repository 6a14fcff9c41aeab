package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/devfolio-sync/internal/config"
)

// isolateEnv points every config source at an empty temp dir so tests never
// read the developer's own config or database.
func isolateEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvRemoteURL, "")

	return dir
}

func resolvedWithLevel(level, format string) *config.Resolved {
	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = level
	cfg.Logging.LogFormat = format

	return config.NewResolved(cfg, "")
}

// --- buildLogger tests ---

func TestBuildLogger_Default(t *testing.T) {
	logger, _ := buildLogger(nil, CLIFlags{}, &bytes.Buffer{}, true)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_ConfigDebug(t *testing.T) {
	logger, _ := buildLogger(resolvedWithLevel("debug", "text"), CLIFlags{}, &bytes.Buffer{}, true)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_VerboseOverridesConfig(t *testing.T) {
	logger, _ := buildLogger(resolvedWithLevel("error", "text"), CLIFlags{Verbose: true}, &bytes.Buffer{}, true)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverridesConfig(t *testing.T) {
	logger, _ := buildLogger(resolvedWithLevel("debug", "text"), CLIFlags{Quiet: true}, &bytes.Buffer{}, true)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_LevelVarChangesLive(t *testing.T) {
	logger, level := buildLogger(resolvedWithLevel("warn", "text"), CLIFlags{}, &bytes.Buffer{}, true)
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))

	level.Set(slog.LevelDebug)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Format(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		terminal bool
		wantJSON bool
	}{
		{"auto on terminal", "auto", true, false},
		{"auto when piped", "auto", false, true},
		{"json forced", "json", true, true},
		{"text forced", "text", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger, _ := buildLogger(resolvedWithLevel("info", tt.format), CLIFlags{}, &buf, tt.terminal)
			logger.Info("hello", slog.String("k", "v"))

			var decoded map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &decoded) == nil
			assert.Equal(t, tt.wantJSON, isJSON, "output: %s", buf.String())
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, logLevel("", CLIFlags{}))
	assert.Equal(t, slog.LevelWarn, logLevel("warn", CLIFlags{}))
	assert.Equal(t, slog.LevelError, logLevel("error", CLIFlags{}))
	assert.Equal(t, slog.LevelDebug, logLevel("error", CLIFlags{Verbose: true}))
	assert.Equal(t, slog.LevelError, logLevel("debug", CLIFlags{Quiet: true}))
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"put", "delete", "get", "list", "fetch", "pending", "sync", "status", "watch", "reload", "config"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "db", "remote", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_VerboseQuietExclusive(t *testing.T) {
	isolateEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestNewRootCmd_InvalidConfigFails(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache]\nttl = \"never\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "pending"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestConfigInit_SkipsConfigLoading(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "new", "config.toml")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "-q", "config", "init", "--base-url", "https://api.devfolio.example"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.devfolio.example", cfg.Remote.BaseURL)

	// Second init refuses to overwrite.
	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", path, "-q", "config", "init"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestCLIOverrides_OnlyChangedFlags(t *testing.T) {
	isolateEnv(t)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--db", "/tmp/x.db"}))

	cli := cliOverrides(cmd, CLIFlags{DBPath: "/tmp/x.db"})
	require.NotNil(t, cli.DBPath)
	assert.Equal(t, "/tmp/x.db", *cli.DBPath)
	assert.Nil(t, cli.RemoteURL)
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })

	cc := &CLIContext{}
	assert.Same(t, cc, mustCLIContext(withCLIContext(context.Background(), cc)))
}
