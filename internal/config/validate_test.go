package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative ttl", func(c *Config) { c.Cache.TTL = "-1s" }, "cache.ttl"},
		{"empty namespace", func(c *Config) { c.Cache.Namespace = "" }, "cache.namespace"},
		{"tiny operation timeout", func(c *Config) { c.Sync.OperationTimeout = "1ms" }, "sync.operation_timeout"},
		{"bad poll interval", func(c *Config) { c.Sync.PollInterval = "often" }, "sync.poll_interval"},
		{"bad mode", func(c *Config) { c.Connectivity.Mode = "carrier-pigeon" }, "connectivity.mode"},
		{"relative health path", func(c *Config) {
			c.Remote.BaseURL = "https://x.example"
			c.Connectivity.HealthPath = "healthz"
		}, "connectivity.health_path"},
		{"relative socket path", func(c *Config) {
			c.Remote.BaseURL = "https://x.example"
			c.Connectivity.Mode = ModeWebsocket
			c.Connectivity.SocketPath = "ws"
		}, "connectivity.socket_path"},
		{"non-http base url", func(c *Config) { c.Remote.BaseURL = "ftp://x.example" }, "remote.base_url"},
		{"base url without host", func(c *Config) { c.Remote.BaseURL = "https://" }, "remote.base_url"},
		{"too many retries", func(c *Config) { c.Remote.MaxRetries = 99 }, "remote.max_retries"},
		{"negative rate limit", func(c *Config) { c.Remote.RateLimit = -1 }, "remote.rate_limit"},
		{"zero breaker failures", func(c *Config) { c.Remote.BreakerFailures = 0 }, "remote.breaker_failures"},
		{"bad log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "logging.log_format"},
		{"bad metrics addr", func(c *Config) { c.Metrics.ListenAddr = "9464" }, "metrics.listen_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_AcceptsEdgeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.TTL = "0s"
	cfg.Remote.MaxRetries = 0
	cfg.Remote.RateLimit = 0
	cfg.Remote.BaseURL = "http://localhost:8080/api"
	cfg.Connectivity.Mode = ModeStatic
	cfg.Metrics.ListenAddr = ":9464"

	assert.NoError(t, Validate(cfg))
}
