package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/config"
	"github.com/tonimelisma/phylomerge/internal/engine"
	"github.com/tonimelisma/phylomerge/internal/inbox"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch DIR",
		Short: "Merge every study document written into a directory",
		Long: `Watch DIR and merge each *.json study document once writes to it have
settled for watch_settle. Merged documents move to DIR/done, rejected ones to
DIR/failed. Documents already in DIR are merged at startup.

SIGHUP (or "phylomerge reload DIR") reloads the config file; SIGINT or
SIGTERM stops after the current merge. Only one watch may run per directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)
	holder := config.NewHolder(cc.Cfg, cc.CfgPath)
	dir := args[0]

	if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	release, err := writePIDFile(watchPIDPath(dir))
	if err != nil {
		return err
	}
	defer release()

	stop := reloadOnSIGHUP(ctx, holder, cc.Logger)
	defer stop()

	return withSession(ctx, cc, func(s *session) error {
		in := inbox.New(dir, mergeFileHandler(s.engine, holder, cc.Logger), cc.Logger, inbox.Options{
			Settle: func() time.Duration { return holder.Config().WatchSettleDuration() },
		})

		return in.Run(ctx)
	})
}

// mergeFileHandler merges the study document at a path, reading limits from
// the current config on every call.
func mergeFileHandler(eng *engine.Engine, holder *config.Holder, logger *slog.Logger) inbox.Handler {
	return func(ctx context.Context, path string) error {
		study, err := loadStudyDocument(path, holder.Config().MaxDocumentBytes())
		if err != nil {
			return err
		}

		rep, err := eng.ReconcileStudy(ctx, study)
		if err != nil {
			return err
		}

		logger.Info("document merged",
			slog.String("path", path),
			slog.String("study", rep.StudyExternalID),
			slog.Int("stamped", rep.Stamped),
		)

		return nil
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload DIR",
		Short: "Ask the watch running on DIR to reload its config",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(watchPIDPath(args[0])); err != nil {
				return err
			}

			cc.Statusf("reload requested\n")

			return nil
		},
	}
}
