package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/store"
	"github.com/tonimelisma/devfolio-sync/internal/syncer"
)

// errSyncIncomplete means a sync ran but left failed operations queued.
// The failures have already been printed.
var errSyncIncomplete = errors.New("sync incomplete")

// offlineNotice is shown whenever changes are queued while offline.
const offlineNotice = "You're currently offline. Changes will sync when you reconnect."

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the remote store now",
		Long: `Replay every queued change in order. Successful operations leave the queue;
failed ones stay queued and are retried on the next sync. Later changes to a
document whose earlier change failed are held back until it succeeds.

Fails immediately, leaving the queue untouched, when the remote is unreachable.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

// syncReport is the --json output of sync.
type syncReport struct {
	PassID    string   `json:"pass_id"`
	Passes    int      `json:"passes"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Deferred  int      `json:"deferred"`
	Pending   int      `json:"pending"`
	Duration  string   `json:"duration"`
	Errors    []string `json:"errors,omitempty"`
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{Probe: true}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	pending, err := sess.Sync.CheckPendingOperations(ctx)
	if err != nil {
		return err
	}

	report, syncErr := sess.Sync.ForceSynchronize(ctx)

	saveSyncRecord(cc, sess.Sync.Status())

	if errors.Is(syncErr, syncer.ErrCannotSyncOffline) {
		if pending > 0 {
			cc.Statusf("%s\n%s\n", formatPending(pending), offlineNotice)
		}

		return fmt.Errorf("cannot sync: %w", syncErr)
	}

	if report == nil {
		return syncErr
	}

	out := newSyncReport(report, sess.Sync.Status().Pending)

	if cc.Flags.JSON {
		if err := printJSON(os.Stdout, out); err != nil {
			return err
		}
	} else {
		printSyncText(cc, out, report.Errors)
	}

	if syncErr == nil {
		return nil
	}

	if report.Failed > 0 || report.Deferred > 0 {
		return errSyncIncomplete
	}

	return syncErr
}

func newSyncReport(r *syncer.PassReport, pending int) syncReport {
	out := syncReport{
		PassID:    r.PassID,
		Passes:    r.Passes,
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Deferred:  r.Deferred,
		Pending:   pending,
		Duration:  r.Duration.Round(time.Millisecond).String(),
	}

	for _, e := range r.Errors {
		out.Errors = append(out.Errors, e.Error())
	}

	return out
}

func printSyncText(cc *CLIContext, out syncReport, errs []error) {
	if out.Total == 0 {
		cc.Statusf("Nothing to sync.\n")
		return
	}

	cc.Statusf("Synced %d of %d operations in %s", out.Succeeded, out.Total, out.Duration)

	if out.Failed > 0 {
		cc.Statusf(", %d failed", out.Failed)
	}

	if out.Deferred > 0 {
		cc.Statusf(", %d held back", out.Deferred)
	}

	cc.Statusf("\n")

	for _, e := range errs {
		var opErr *syncer.OperationError
		if errors.As(e, &opErr) {
			fmt.Fprintf(os.Stderr, "  %s %s: %v\n", opErr.Kind, opErr.Ref, opErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "  %v\n", e)
		}
	}

	if out.Pending > 0 {
		cc.Statusf("%s\n", formatPending(out.Pending))
	}
}

// saveSyncRecord persists the status for "status". Failure to write it does
// not fail the command.
func saveSyncRecord(cc *CLIContext, st syncer.Status) {
	if cc.Cfg.LastSyncPath == "" {
		return
	}

	if err := writeSyncRecord(cc.Cfg.LastSyncPath, newSyncRecord(st, time.Now())); err != nil {
		cc.Logger.Warn("saving sync record failed",
			slog.String("path", cc.Cfg.LastSyncPath),
			slog.String("error", err.Error()),
		)
	}
}

// docRef formats a queued operation's target for display.
func docRef(op store.PendingOperation) string {
	return op.Op.Target().String()
}
