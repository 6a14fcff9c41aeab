package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "DEVFOLIO_SYNC_CONFIG"
	EnvDB        = "DEVFOLIO_SYNC_DB"
	EnvRemoteURL = "DEVFOLIO_SYNC_REMOTE_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DEVFOLIO_SYNC_CONFIG: override config file path
	DBPath     string // DEVFOLIO_SYNC_DB: local database path
	RemoteURL  string // DEVFOLIO_SYNC_REMOTE_URL: remote base URL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDB),
		RemoteURL:  os.Getenv(EnvRemoteURL),
	}
}
