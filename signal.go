package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM,
// letting the synchronizer finish the operation in flight. The process exits
// with status 1 on a second signal, or when grace passes after the first
// without stop being called (grace <= 0 waits indefinitely). Callers defer
// stop once the daemon has wound down.
func shutdownContext(parent context.Context, grace time.Duration, logger *slog.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	var once sync.Once

	stop = func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		var sig os.Signal

		select {
		case sig = <-sigs:
		case <-done:
			return
		case <-parent.Done():
			return
		}

		logger.Info("shutting down after the operation in flight",
			slog.String("signal", sig.String()),
			slog.Duration("grace", grace),
		)
		cancel()

		var deadline <-chan time.Time

		if grace > 0 {
			timer := time.NewTimer(grace)
			defer timer.Stop()

			deadline = timer.C
		}

		select {
		case sig = <-sigs:
			logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
		case <-deadline:
			logger.Warn("shutdown did not finish in time, exiting now", slog.Duration("grace", grace))
		case <-done:
			return
		}

		os.Exit(1)
	}()

	return ctx, stop
}

// reloadSignals delivers SIGHUP until stop is called.
func reloadSignals() (ch <-chan os.Signal, stop func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	return hup, func() { signal.Stop(hup) }
}
