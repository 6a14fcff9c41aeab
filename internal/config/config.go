// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for devfolio-sync. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). Durations are kept as strings in the file representation and
// parsed once into a Resolved value.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Store        StoreConfig        `toml:"store"`
	Cache        CacheConfig        `toml:"cache"`
	Sync         SyncConfig         `toml:"sync"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Remote       RemoteConfig       `toml:"remote"`
	Logging      LoggingConfig      `toml:"logging"`
	Metrics      MetricsConfig      `toml:"metrics"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

// CacheConfig controls the read-through cache layer.
type CacheConfig struct {
	TTL           string `toml:"ttl"`
	RetryOnOnline bool   `toml:"retry_on_online"`
	Namespace     string `toml:"namespace"`
}

// SyncConfig controls queue replay.
type SyncConfig struct {
	OperationTimeout string `toml:"operation_timeout"`
	AutoSync         bool   `toml:"auto_sync"`
	PollInterval     string `toml:"poll_interval"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`
}

// Connectivity modes.
const (
	ModeProbe     = "probe"
	ModeWebsocket = "websocket"
	ModeStatic    = "static"
)

// ConnectivityConfig selects how online state is detected. "probe" polls
// HealthPath, "websocket" holds a socket open at SocketPath, and "static"
// assumes online.
type ConnectivityConfig struct {
	Mode          string `toml:"mode"`
	ProbeInterval string `toml:"probe_interval"`
	ProbeTimeout  string `toml:"probe_timeout"`
	HealthPath    string `toml:"health_path"`
	SocketPath    string `toml:"socket_path"`
}

// RemoteConfig configures the remote document store client.
type RemoteConfig struct {
	BaseURL         string  `toml:"base_url"`
	RequestTimeout  string  `toml:"request_timeout"`
	MaxRetries      int     `toml:"max_retries"`
	RetryDelay      string  `toml:"retry_delay"`
	RateLimit       float64 `toml:"rate_limit"`
	TokenFile       string  `toml:"token_file"`
	BreakerFailures int     `toml:"breaker_failures"`
	BreakerTimeout  string  `toml:"breaker_timeout"`
	UserAgent       string  `toml:"user_agent"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the Prometheus endpoint served by watch.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DBPath     *string // --db flag
	RemoteURL  *string // --remote flag
	LogLevel   *string // derived from --verbose / --quiet
}
