package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/devfolio-sync/internal/config"
	"github.com/tonimelisma/devfolio-sync/internal/connectivity"
	"github.com/tonimelisma/devfolio-sync/internal/metrics"
	"github.com/tonimelisma/devfolio-sync/internal/syncer"
)

// metricsReadHeaderTimeout bounds slow clients on the metrics endpoint.
const metricsReadHeaderTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync daemon",
		Long: `Run in the foreground, tracking connectivity and replaying queued changes
whenever the remote is reachable: on startup, on every reconnect, and on each
poll of the queue for changes made by other commands.

SIGINT or SIGTERM stops after the operation in flight; a second signal, or
[sync] shutdown_timeout passing first, exits immediately. SIGHUP, "devfolio-sync reload" or saving the config file reloads
the configuration.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	release, err := writePIDFile(cfg.PIDPath)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := shutdownContext(cmd.Context(), cfg.Sync.ShutdownTimeout, logger)
	defer stop()

	sess, err := openSession(ctx, cfg, sessionOptions{
		Probe:    true,
		OnStatus: func(st syncer.Status) { saveSyncRecord(cc, st) },
	}, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !cfg.RemoteConfigured() {
		logger.Warn("no remote configured: changes are only queued")
	}

	d := &daemon{
		cc:     cc,
		sess:   sess,
		holder: config.NewHolder(cfg, cfg.ConfigPath),
		logger: logger,
	}

	return d.run(ctx)
}

// daemon is one running "watch": the session plus the config it reloads.
type daemon struct {
	cc     *CLIContext
	sess   *Session
	holder *config.Holder
	logger *slog.Logger
}

func (d *daemon) run(ctx context.Context) error {
	cfg := d.holder.Config()

	unsub := d.sess.Monitor.Subscribe(d.onConnectivity)
	defer unsub()

	// Bind the metrics port first so a taken address fails before anything runs.
	var metricsLn net.Listener

	if cfg.Metrics.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.ListenAddr)
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}

		metricsLn = ln
	}

	g, gctx := errgroup.WithContext(ctx)

	if source := connectivitySource(d.sess, cfg, d.logger); source != nil {
		g.Go(func() error { return source(gctx) })
	}

	g.Go(func() error {
		return d.sess.Sync.Run(gctx, syncer.WatchOpts{PollInterval: cfg.Sync.PollInterval})
	})

	if metricsLn != nil {
		g.Go(func() error { return serveMetrics(gctx, metricsLn, cfg.Sync.ShutdownTimeout, d.logger) })
	}

	g.Go(func() error { return d.watchReloads(gctx) })

	d.logger.Info("watch daemon started",
		slog.String("db", cfg.DBPath),
		slog.String("remote", cfg.Remote.BaseURL),
		slog.String("mode", cfg.Connectivity.Mode),
		slog.Bool("online", d.sess.Monitor.IsOnline()),
	)

	err := g.Wait()

	d.logger.Info("watch daemon stopped")

	return err
}

func (d *daemon) onConnectivity(online bool) {
	metrics.SetOnline(online)

	if online {
		d.logger.Info("connectivity: online")
		return
	}

	pending := d.sess.Sync.Status().Pending
	d.logger.Warn("connectivity: offline, changes will sync when you reconnect",
		slog.Int("pending", pending),
	)
}

// connectivitySource returns the loop that drives the monitor for the
// configured mode, or nil when nothing needs to run: static mode marks the
// remote reachable once, and without a remote the monitor stays offline.
func connectivitySource(sess *Session, cfg *config.Resolved, logger *slog.Logger) func(context.Context) error {
	if !cfg.RemoteConfigured() {
		return nil
	}

	switch cfg.Connectivity.Mode {
	case config.ModeStatic:
		sess.Monitor.Set(true)
		return nil
	case config.ModeWebsocket:
		w := connectivity.NewSocketWatcher(sess.Monitor, cfg.Connectivity.SocketURL, sess.authHeader(), nil, logger)
		return w.Run
	default:
		p := connectivity.NewProber(sess.Monitor, connectivity.ProberConfig{
			URL:      cfg.Connectivity.HealthURL,
			Interval: cfg.Connectivity.ProbeInterval,
			Timeout:  cfg.Connectivity.ProbeTimeout,
		}, logger)

		return p.Run
	}
}

// serveMetrics serves /metrics on ln until ctx is canceled, then shuts down
// within timeout.
func serveMetrics(ctx context.Context, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	errCh := make(chan error, 1)

	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("metrics endpoint listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics endpoint: %w", err)
	case <-ctx.Done():
	}

	if timeout <= 0 {
		timeout = time.Second
	}

	// The parent is already canceled; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics endpoint shutdown: %w", err)
	}

	return nil
}
