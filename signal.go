package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/phylomerge/internal/config"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. The first signal lets an in-flight merge
// finish its transaction; the second is for when something hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// reloadOnSIGHUP re-reads the config file into holder on every SIGHUP until
// ctx is canceled or the returned stop function is called.
func reloadOnSIGHUP(ctx context.Context, holder *config.Holder, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				reloadConfig(holder, logger)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// reloadConfig resolves the config again from holder's file. An invalid file
// keeps the previous config in effect. Only settings read per document
// (watch_settle, max_document_size) take effect without a restart.
func reloadConfig(holder *config.Holder, logger *slog.Logger) {
	cfg, _, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: holder.Path()})
	if err != nil {
		logger.Warn("config reload failed, keeping previous config",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	r := holder.Update(cfg)
	logger.Info("config reloaded",
		slog.String("path", holder.Path()),
		slog.Any("applied", r.Applied),
	)

	if len(r.Pending) > 0 {
		logger.Warn("changed settings take effect after restart", slog.Any("keys", r.Pending))
	}
}
