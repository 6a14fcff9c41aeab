package config

import (
	"net/url"
	"time"
)

// Resolved is the effective configuration after all override layers, with
// durations parsed and paths filled in. Only build it from a validated
// Config.
type Resolved struct {
	ConfigPath   string
	DBPath       string
	PIDPath      string
	LastSyncPath string

	Cache        ResolvedCache
	Sync         ResolvedSync
	Connectivity ResolvedConnectivity
	Remote       ResolvedRemote
	Logging      LoggingConfig
	Metrics      MetricsConfig
}

// ResolvedCache is the parsed [cache] section.
type ResolvedCache struct {
	TTL           time.Duration
	RetryOnOnline bool
	Namespace     string
}

// ResolvedSync is the parsed [sync] section.
type ResolvedSync struct {
	OperationTimeout time.Duration
	AutoSync         bool
	PollInterval     time.Duration
	ShutdownTimeout  time.Duration
}

// ResolvedConnectivity is the parsed [connectivity] section with endpoint
// paths joined onto the remote base URL.
type ResolvedConnectivity struct {
	Mode          string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	HealthURL     string
	SocketURL     string
}

// ResolvedRemote is the parsed [remote] section.
type ResolvedRemote struct {
	BaseURL         string
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimit       float64
	TokenFile       string
	BreakerFailures int
	BreakerTimeout  time.Duration
	UserAgent       string
}

// NewResolved converts a validated Config into its effective form.
func NewResolved(cfg *Config, configPath string) *Resolved {
	dbPath := expandTilde(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = DefaultDBPath()
	}

	dataDir := dataDirFor(dbPath)

	tokenFile := expandTilde(cfg.Remote.TokenFile)
	if tokenFile == "" {
		tokenFile = inDir(dataDir, tokenFileName)
	}

	return &Resolved{
		ConfigPath:   configPath,
		DBPath:       dbPath,
		PIDPath:      inDir(dataDir, pidFileName),
		LastSyncPath: inDir(dataDir, lastSyncFileName),
		Cache: ResolvedCache{
			TTL:           mustDuration(cfg.Cache.TTL),
			RetryOnOnline: cfg.Cache.RetryOnOnline,
			Namespace:     cfg.Cache.Namespace,
		},
		Sync: ResolvedSync{
			OperationTimeout: mustDuration(cfg.Sync.OperationTimeout),
			AutoSync:         cfg.Sync.AutoSync,
			PollInterval:     mustDuration(cfg.Sync.PollInterval),
			ShutdownTimeout:  mustDuration(cfg.Sync.ShutdownTimeout),
		},
		Connectivity: ResolvedConnectivity{
			Mode:          cfg.Connectivity.Mode,
			ProbeInterval: mustDuration(cfg.Connectivity.ProbeInterval),
			ProbeTimeout:  mustDuration(cfg.Connectivity.ProbeTimeout),
			HealthURL:     joinURL(cfg.Remote.BaseURL, cfg.Connectivity.HealthPath),
			SocketURL:     joinURL(cfg.Remote.BaseURL, cfg.Connectivity.SocketPath),
		},
		Remote: ResolvedRemote{
			BaseURL:         cfg.Remote.BaseURL,
			RequestTimeout:  mustDuration(cfg.Remote.RequestTimeout),
			MaxRetries:      cfg.Remote.MaxRetries,
			RetryDelay:      mustDuration(cfg.Remote.RetryDelay),
			RateLimit:       cfg.Remote.RateLimit,
			TokenFile:       tokenFile,
			BreakerFailures: cfg.Remote.BreakerFailures,
			BreakerTimeout:  mustDuration(cfg.Remote.BreakerTimeout),
			UserAgent:       cfg.Remote.UserAgent,
		},
		Logging: cfg.Logging,
		Metrics: cfg.Metrics,
	}
}

// RemoteConfigured reports whether a remote base URL is set.
func (r *Resolved) RemoteConfigured() bool {
	return r.Remote.BaseURL != ""
}

// mustDuration parses a duration already checked by Validate. Invalid input
// yields zero, which every consumer replaces with its own default.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

func joinURL(base, path string) string {
	if base == "" || path == "" {
		return ""
	}

	joined, err := url.JoinPath(base, path)
	if err != nil {
		return ""
	}

	return joined
}
