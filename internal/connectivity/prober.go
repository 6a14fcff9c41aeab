package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Probe defaults. The interval keeps transitions sub-second.
const (
	DefaultProbeInterval = 500 * time.Millisecond
	DefaultProbeTimeout  = 2 * time.Second
)

// ProberConfig configures a Prober.
type ProberConfig struct {
	URL      string        // health endpoint, e.g. https://api.example.com/healthz
	Interval time.Duration // time between probes
	Timeout  time.Duration // per-probe deadline
	Client   *http.Client  // nil uses a client without timeout (Timeout applies per request)
}

// Prober drives a Monitor by requesting a health endpoint on an interval.
// Any HTTP response below 500 counts as online: the server answered, even if
// it rejected the request. Transport errors and 5xx count as offline.
type Prober struct {
	cfg       ProberConfig
	monitor   *Monitor
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewProber returns a Prober reporting into monitor.
func NewProber(monitor *Monitor, cfg ProberConfig, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}

	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}

	return &Prober{cfg: cfg, monitor: monitor, logger: logger, sleepFunc: timeSleep}
}

// Probe performs a single health request and reports whether the remote
// answered. It does not touch the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, http.NoBody)
	if err != nil {
		p.logger.Debug("health probe request invalid", slog.String("error", err.Error()))
		return false
	}

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		p.logger.Debug("health probe failed", slog.String("url", p.cfg.URL), slog.String("error", err.Error()))
		return false
	}
	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes immediately and then once per interval, updating the monitor
// after each probe. It blocks until ctx is canceled and returns nil.
func (p *Prober) Run(ctx context.Context) error {
	p.logger.Info("connectivity prober starting",
		slog.String("url", p.cfg.URL),
		slog.Duration("interval", p.cfg.Interval),
	)

	for {
		online := p.Probe(ctx)
		if ctx.Err() != nil {
			return nil
		}

		p.monitor.Set(online)

		if err := p.sleepFunc(ctx, p.cfg.Interval); err != nil {
			return nil
		}
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
