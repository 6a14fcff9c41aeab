package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minOperationTimeout = 100 * time.Millisecond
	minPollInterval     = 100 * time.Millisecond
	minProbeInterval    = 50 * time.Millisecond
	minProbeTimeout     = 50 * time.Millisecond
	maxRetries          = 10
	maxBreakerFailures  = 1000
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateConnectivity(&cfg.Connectivity, cfg.Remote.BaseURL)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	return errors.Join(errs...)
}

func validateCache(c *CacheConfig) []error {
	var errs []error

	errs = append(errs, validateDurationNonNeg("cache.ttl", c.TTL)...)

	if c.Namespace == "" {
		errs = append(errs, errors.New("cache.namespace: must not be empty"))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("sync.operation_timeout", s.OperationTimeout, minOperationTimeout)...)
	errs = append(errs, validateDurationMin("sync.poll_interval", s.PollInterval, minPollInterval)...)
	errs = append(errs, validateDurationNonNeg("sync.shutdown_timeout", s.ShutdownTimeout)...)

	return errs
}

var validModes = map[string]bool{
	ModeProbe:     true,
	ModeWebsocket: true,
	ModeStatic:    true,
}

func validateConnectivity(c *ConnectivityConfig, baseURL string) []error {
	var errs []error

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Errorf("connectivity.mode: must be one of probe, websocket, static; got %q", c.Mode))
	}

	errs = append(errs, validateDurationMin("connectivity.probe_interval", c.ProbeInterval, minProbeInterval)...)
	errs = append(errs, validateDurationMin("connectivity.probe_timeout", c.ProbeTimeout, minProbeTimeout)...)

	if baseURL != "" {
		if c.Mode == ModeProbe && !strings.HasPrefix(c.HealthPath, "/") {
			errs = append(errs, fmt.Errorf("connectivity.health_path: must start with /, got %q", c.HealthPath))
		}

		if c.Mode == ModeWebsocket && !strings.HasPrefix(c.SocketPath, "/") {
			errs = append(errs, fmt.Errorf("connectivity.socket_path: must start with /, got %q", c.SocketPath))
		}
	}

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if r.BaseURL != "" {
		if err := validateHTTPURL(r.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("remote.base_url: %w", err))
		}
	}

	errs = append(errs, validateDurationNonNeg("remote.request_timeout", r.RequestTimeout)...)
	errs = append(errs, validateDurationNonNeg("remote.retry_delay", r.RetryDelay)...)
	errs = append(errs, validateDurationNonNeg("remote.breaker_timeout", r.BreakerTimeout)...)

	if r.MaxRetries < 0 || r.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("remote.max_retries: must be between 0 and %d, got %d", maxRetries, r.MaxRetries))
	}

	if r.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("remote.rate_limit: must be >= 0, got %g", r.RateLimit))
	}

	if r.BreakerFailures < 1 || r.BreakerFailures > maxBreakerFailures {
		errs = append(errs, fmt.Errorf("remote.breaker_failures: must be between 1 and %d, got %d",
			maxBreakerFailures, r.BreakerFailures))
	}

	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an absolute http or https URL, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateMetrics(m *MetricsConfig) []error {
	if m.ListenAddr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		return []error{fmt.Errorf("metrics.listen_addr: %w", err)}
	}

	return nil
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	return validateDurationMin(field, value, 0)
}
