package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/config"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 250 * time.Millisecond

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running watch daemon to reload its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(cc.Cfg.PIDPath); err != nil {
				return err
			}

			cc.Statusf("Reload signal sent to watch daemon.\n")

			return nil
		},
	}
}

// watchReloads reloads the config on SIGHUP and on changes to the config
// file until ctx is canceled.
func (d *daemon) watchReloads(ctx context.Context) error {
	hup, stop := reloadSignals()
	defer stop()

	var events <-chan fsnotify.Event

	cw, err := newConfigWatcher(d.holder.Path())
	if err != nil {
		d.logger.Info("config file not watched, reload with SIGHUP",
			slog.String("path", d.holder.Path()),
			slog.String("reason", err.Error()),
		)
	} else {
		defer cw.Close()

		events = cw.w.Events

		go cw.logErrors(ctx, d.logger)
	}

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			d.reload("signal")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}

			if cw.relevant(ev) {
				debounce = time.After(reloadDebounce)
			}
		case <-debounce:
			debounce = nil
			d.reload("file change")
		}
	}
}

// reload re-resolves the config with the original overrides. Only the log
// level applies live; other changes are reported as needing a restart.
func (d *daemon) reload(trigger string) {
	old := d.holder.Config()

	next, err := config.Reload(d.holder, d.cc.Env, d.cc.Overrides)
	if err != nil {
		d.logger.Error("config reload failed, keeping current config",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)

		return
	}

	d.cc.Level.Set(logLevel(next.Logging.LogLevel, d.cc.Flags))

	for _, key := range restartRequired(old, next) {
		d.logger.Warn("config change takes effect after restart", slog.String("section", key))
	}

	d.logger.Info("config reloaded",
		slog.String("trigger", trigger),
		slog.String("path", d.holder.Path()),
		slog.String("log_level", next.Logging.LogLevel),
		slog.Int("generation", d.holder.Generation()),
	)
}

// restartRequired lists the changed settings a running daemon cannot apply.
func restartRequired(old, next *config.Resolved) []string {
	var changed []string

	if old.DBPath != next.DBPath {
		changed = append(changed, "store")
	}

	if old.Cache != next.Cache {
		changed = append(changed, "cache")
	}

	if old.Sync != next.Sync {
		changed = append(changed, "sync")
	}

	if old.Connectivity != next.Connectivity {
		changed = append(changed, "connectivity")
	}

	if old.Remote != next.Remote {
		changed = append(changed, "remote")
	}

	if old.Logging.LogFormat != next.Logging.LogFormat {
		changed = append(changed, "logging.log_format")
	}

	if old.Metrics != next.Metrics {
		changed = append(changed, "metrics")
	}

	return changed
}

// configWatcher reports changes to one file. Editors usually replace the
// file rather than write it in place, so the directory is watched and
// events are filtered by name.
type configWatcher struct {
	w    *fsnotify.Watcher
	path string
}

func newConfigWatcher(path string) (*configWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("no config path")
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &configWatcher{w: w, path: filepath.Clean(path)}, nil
}

func (c *configWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != c.path {
		return false
	}

	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (c *configWatcher) logErrors(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-c.w.Errors:
			if !ok {
				return
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching.
func (c *configWatcher) Close() error {
	return c.w.Close()
}
