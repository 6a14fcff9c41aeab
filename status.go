package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Connectivity labels for status output.
const (
	connOnline        = "online"
	connOffline       = "offline"
	connNotConfigured = "not configured"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queued changes, connectivity and the last sync result",
		Long: `Show how many changes are waiting to sync, whether the remote is reachable,
whether a watch daemon is running, and the outcome of the most recent sync.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().Bool("no-probe", false, "do not contact the remote to check connectivity")

	return cmd
}

// statusReport is the --json output of status.
type statusReport struct {
	Pending      int         `json:"pending"`
	Connectivity string      `json:"connectivity"`
	RemoteURL    string      `json:"remote_url,omitempty"`
	DaemonPID    int         `json:"daemon_pid,omitempty"`
	DBPath       string      `json:"db_path"`
	LastSync     *syncRecord `json:"last_sync,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	noProbe, _ := cmd.Flags().GetBool("no-probe")

	sess, err := openSession(ctx, cc.Cfg, sessionOptions{Probe: !noProbe}, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	pending, err := sess.Engine.CheckPendingOperations(ctx)
	if err != nil {
		return err
	}

	rec, err := readSyncRecord(cc.Cfg.LastSyncPath)
	if err != nil {
		cc.Logger.Warn("ignoring unreadable sync record", slog.String("error", err.Error()))
	}

	report := statusReport{
		Pending:      pending,
		Connectivity: connectivityLabel(cc.Cfg.RemoteConfigured(), sess.Monitor.IsOnline(), noProbe),
		RemoteURL:    cc.Cfg.Remote.BaseURL,
		DaemonPID:    runningDaemon(cc.Cfg.PIDPath),
		DBPath:       cc.Cfg.DBPath,
		LastSync:     rec,
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, report)
	}

	printStatusText(os.Stdout, report)

	return nil
}

func connectivityLabel(configured, online, noProbe bool) string {
	switch {
	case !configured:
		return connNotConfigured
	case noProbe:
		return "unknown"
	case online:
		return connOnline
	default:
		return connOffline
	}
}

func printStatusText(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "Pending:      %s\n", formatPending(r.Pending))

	if r.RemoteURL != "" {
		fmt.Fprintf(w, "Remote:       %s (%s)\n", r.RemoteURL, r.Connectivity)
	} else {
		fmt.Fprintf(w, "Remote:       %s\n", r.Connectivity)
	}

	if r.DaemonPID > 0 {
		fmt.Fprintf(w, "Daemon:       running (PID %d)\n", r.DaemonPID)
	} else {
		fmt.Fprintf(w, "Daemon:       not running\n")
	}

	fmt.Fprintf(w, "Database:     %s\n", r.DBPath)

	if rec := r.LastSync; rec != nil {
		printLastSync(w, rec, r.DaemonPID > 0)
	}

	if r.Pending > 0 && r.Connectivity == connOffline {
		fmt.Fprintf(w, "\n%s\n", offlineNotice)
	}
}

func printLastSync(w io.Writer, rec *syncRecord, daemonRunning bool) {
	// A "syncing" record is only live while the daemon that wrote it runs.
	if rec.State == "syncing" && daemonRunning {
		fmt.Fprintf(w, "Sync:         syncing %d%% (%d remaining)\n", rec.Progress, rec.Remaining)
	} else if !rec.LastRun.IsZero() {
		fmt.Fprintf(w, "Last sync:    %s (%s)\n", formatTime(rec.LastRun.Local()), rec.State)
	}

	if rec.LastError != "" {
		fmt.Fprintf(w, "Last error:   %s\n", rec.LastError)
	}

	for _, f := range rec.Failing {
		fmt.Fprintf(w, "  failing: %s %s (%d attempts, last %s): %s\n",
			f.Kind, f.Document, f.Failures, f.LastAt.Local().Format(time.Kitchen), f.LastError)
	}
}
