package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that run without the resolved config.
// "config init" writes the file the resolver would otherwise read.
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flag values of one invocation.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	RemoteURL  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once in PersistentPreRunE and carried on the command
// context, so subcommands never read package globals.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	Level  *slog.LevelVar

	// Env and Overrides are kept so the watch daemon can re-resolve the
	// config with the same layers on reload.
	Env       config.EnvOverrides
	Overrides config.CLIOverrides

	// Cfg is nil for commands annotated with skipConfigAnnotation.
	Cfg *config.Resolved
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext set by the root pre-run. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("BUG: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "devfolio-sync",
		Short: "Offline-first document store and sync engine",
		Long: `devfolio-sync keeps portfolio documents in a local database, queues every
change, and replays the queue against the remote store when connectivity
is available.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DBPath, "db", "", "offline database path")
	pf.StringVar(&flags.RemoteURL, "remote", "", "remote store base URL")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves the configuration (unless the command opts out)
// and builds the logger from it.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{
		Flags:     flags,
		Env:       config.ReadEnvOverrides(),
		Overrides: cliOverrides(cmd, flags),
	}

	if cmd.Annotations[skipConfigAnnotation] != "true" {
		resolved, err := config.Resolve(cc.Env, cc.Overrides)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = resolved
	}

	cc.Logger, cc.Level = buildLogger(cc.Cfg, flags, os.Stderr, isTerminal(os.Stderr))

	return cc, nil
}

// cliOverrides passes only explicitly set flags to the resolver, so an
// unset --db never masks the config file or environment.
func cliOverrides(cmd *cobra.Command, flags CLIFlags) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("db") {
		cli.DBPath = &flags.DBPath
	}

	if cmd.Flags().Changed("remote") {
		cli.RemoteURL = &flags.RemoteURL
	}

	return cli
}

// logLevel picks the effective level. The config file provides the
// baseline; --verbose and --quiet override it because CLI flags always win.
func logLevel(cfgLevel string, flags CLIFlags) slog.Level {
	level := slog.LevelInfo

	switch cfgLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// buildLogger creates the process logger. The level lives in the returned
// LevelVar so a config reload can change it in place.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer, terminal bool) (*slog.Logger, *slog.LevelVar) {
	cfgLevel, format := "", "auto"
	if cfg != nil {
		cfgLevel, format = cfg.Logging.LogLevel, cfg.Logging.LogFormat
	}

	level := new(slog.LevelVar)
	level.Set(logLevel(cfgLevel, flags))

	opts := &slog.HandlerOptions{Level: level}

	useJSON := format == "json" || (format == "auto" && !terminal)
	if useJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), level
	}

	return slog.New(slog.NewTextHandler(w, opts)), level
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
