package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultCacheTTL         = "1h"
	defaultCacheNamespace   = "cache_"
	defaultOperationTimeout = "30s"
	defaultPollInterval     = "5s"
	defaultShutdownTimeout  = "10s"
	defaultMode             = ModeProbe
	defaultProbeInterval    = "500ms"
	defaultProbeTimeout     = "2s"
	defaultHealthPath       = "/healthz"
	defaultSocketPath       = "/ws"
	defaultRequestTimeout   = "30s"
	defaultMaxRetries       = 3
	defaultRetryDelay       = "1s"
	defaultRateLimit        = 10
	defaultBreakerFailures  = 5
	defaultBreakerTimeout   = "30s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults.
// Paths are left empty and filled from the platform directories by Resolve.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:           defaultCacheTTL,
			RetryOnOnline: true,
			Namespace:     defaultCacheNamespace,
		},
		Sync: SyncConfig{
			OperationTimeout: defaultOperationTimeout,
			AutoSync:         true,
			PollInterval:     defaultPollInterval,
			ShutdownTimeout:  defaultShutdownTimeout,
		},
		Connectivity: ConnectivityConfig{
			Mode:          defaultMode,
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
			HealthPath:    defaultHealthPath,
			SocketPath:    defaultSocketPath,
		},
		Remote: RemoteConfig{
			RequestTimeout:  defaultRequestTimeout,
			MaxRetries:      defaultMaxRetries,
			RetryDelay:      defaultRetryDelay,
			RateLimit:       defaultRateLimit,
			BreakerFailures: defaultBreakerFailures,
			BreakerTimeout:  defaultBreakerTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
