package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers "config show": the effective values
// after defaults, file, environment and CLI flags have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %q)\n\n", r.ConfigPath)

	ew.printf("[store]\n")
	ew.printf("  db_path = %q\n", r.DBPath)
	ew.printf("\n")

	ew.printf("[cache]\n")
	ew.printf("  ttl             = %q\n", r.Cache.TTL.String())
	ew.printf("  retry_on_online = %t\n", r.Cache.RetryOnOnline)
	ew.printf("  namespace       = %q\n", r.Cache.Namespace)
	ew.printf("\n")

	ew.printf("[sync]\n")
	ew.printf("  operation_timeout = %q\n", r.Sync.OperationTimeout.String())
	ew.printf("  auto_sync         = %t\n", r.Sync.AutoSync)
	ew.printf("  poll_interval     = %q\n", r.Sync.PollInterval.String())
	ew.printf("  shutdown_timeout  = %q\n", r.Sync.ShutdownTimeout.String())
	ew.printf("\n")

	ew.printf("[connectivity]\n")
	ew.printf("  mode           = %q\n", r.Connectivity.Mode)
	ew.printf("  probe_interval = %q\n", r.Connectivity.ProbeInterval.String())
	ew.printf("  probe_timeout  = %q\n", r.Connectivity.ProbeTimeout.String())

	if r.Connectivity.HealthURL != "" {
		ew.printf("  # health URL: %s\n", r.Connectivity.HealthURL)
	}

	if r.Connectivity.SocketURL != "" {
		ew.printf("  # socket URL: %s\n", r.Connectivity.SocketURL)
	}

	ew.printf("\n")

	renderRemoteSection(ew, &r.Remote)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)
	ew.printf("\n")

	ew.printf("[metrics]\n")
	ew.printf("  listen_addr = %q\n", r.Metrics.ListenAddr)

	return ew.err
}

func renderRemoteSection(ew *errWriter, r *ResolvedRemote) {
	ew.printf("[remote]\n")

	if r.BaseURL == "" {
		ew.printf("  # base_url not set: remote commands are unavailable\n")
	} else {
		ew.printf("  base_url         = %q\n", r.BaseURL)
	}

	ew.printf("  request_timeout  = %q\n", r.RequestTimeout.String())
	ew.printf("  max_retries      = %d\n", r.MaxRetries)
	ew.printf("  retry_delay      = %q\n", r.RetryDelay.String())
	ew.printf("  rate_limit       = %g\n", r.RateLimit)
	ew.printf("  token_file       = %q\n", r.TokenFile)
	ew.printf("  breaker_failures = %d\n", r.BreakerFailures)
	ew.printf("  breaker_timeout  = %q\n", r.BreakerTimeout.String())

	if r.UserAgent != "" {
		ew.printf("  user_agent       = %q\n", r.UserAgent)
	}

	ew.printf("\n")
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
