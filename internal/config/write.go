package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteDefault when the file already exists
// and overwrite was not requested.
var ErrConfigExists = errors.New("config: file already exists")

// baseURLPlaceholder is replaced in configTemplate by WriteDefault.
const baseURLPlaceholder = "{{base_url}}"

// configTemplate is the config file written by "config init". Every setting
// is present as a commented-out default so users can discover options
// without reading docs.
const configTemplate = `# devfolio-sync configuration

[store]
# Offline database (default: platform data directory)
# db_path = ""

[cache]
# How long a cached read stays fresh
# ttl = "1h"
# Re-fetch failed reads when connectivity returns
# retry_on_online = true
# namespace = "cache_"

[sync]
# Per-operation remote call timeout
# operation_timeout = "30s"
# Drain the queue on every reconnect
# auto_sync = true
# How often watch re-checks the queue
# poll_interval = "5s"
# shutdown_timeout = "10s"

[connectivity]
# probe, websocket or static
# mode = "probe"
# probe_interval = "500ms"
# probe_timeout = "2s"
# health_path = "/healthz"
# socket_path = "/ws"

[remote]
base_url = {{base_url}}
# request_timeout = "30s"
# max_retries = 3
# retry_delay = "1s"
# Requests per second, 0 = unlimited
# rate_limit = 10
# token_file = ""
# breaker_failures = 5
# breaker_timeout = "30s"

[logging]
# debug, info, warn, error
# log_level = "info"
# auto, text, json
# log_format = "auto"

[metrics]
# Prometheus endpoint for watch, empty disables
# listen_addr = ""
`

// WriteDefault writes the commented default config to path with baseURL
// filled in. The write is atomic and parent directories are created.
func WriteDefault(path, baseURL string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	if baseURL != "" {
		if err := validateHTTPURL(baseURL); err != nil {
			return fmt.Errorf("remote.base_url: %w", err)
		}
	}

	slog.Info("writing default config file", slog.String("path", path))

	content := strings.Replace(configTemplate, baseURLPlaceholder, fmt.Sprintf("%q", baseURL), 1)

	return atomicWriteFile(path, []byte(content))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path, so a crash never leaves a
// partial config file. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
