package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/config"
)

// buildVersion is set at build time via ldflags.
var buildVersion = "dev"

// skipConfigAnnotation marks commands that must run without a resolved
// config, such as "config init" writing the very first file.
const skipConfigAnnotation = "phylomerge/skip-config"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath  string
	DBPath      string
	LogLevel    string
	MetricsFile string
	JSON        bool
	Verbose     bool
	Quiet       bool
}

// CLIContext is built once per invocation by the root pre-run and carried in
// the command context.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
	Out     io.Writer
	Err     io.Writer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run. Every
// command runs after it, so a missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("phylomerge: command context carries no CLIContext")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "phylomerge",
		Short: "Versioned merge engine for phylogenetic studies",
		Long: `phylomerge merges client-edited study documents into a persisted store,
keeping the identity of unchanged entities and stamping exactly the changed
ones with new versions, so that clients can pull fine-grained deltas.`,
		Version:       buildVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{
				Flags: flags,
				Out:   cmd.OutOrStdout(),
				Err:   cmd.ErrOrStderr(),
			}

			if cmd.Annotations[skipConfigAnnotation] == "" {
				cfg, path, err := loadConfig(cmd, &flags)
				if err != nil {
					return err
				}

				cc.Cfg, cc.CfgPath = cfg, path
			}

			cc.Logger = buildLogger(cc.Cfg, flags, cc.Err)
			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DBPath, "db", "", "study database path")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.MetricsFile, "metrics-file", "", "write merge metrics in Prometheus text format to this file on exit")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newChangesCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set override the file.
func loadConfig(cmd *cobra.Command, flags *CLIFlags) (*config.Config, string, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("db") {
		cli.DBPath = &flags.DBPath
	}

	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flags.LogLevel
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	return cfg, path, nil
}

// buildLogger creates the logger for one invocation. The config log level is
// the baseline; --verbose and --quiet override it. With log_format "auto"
// the output is text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Config, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		level = parseLevel(cfg.LogLevel)
		format = cfg.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
