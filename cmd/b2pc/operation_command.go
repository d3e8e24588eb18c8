package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"b2pc/internal/config"
	"b2pc/internal/history"
	"b2pc/internal/logging"
	"b2pc/internal/notifications"
	"b2pc/internal/pipeline"
)

var errRunCancelled = errors.New("run cancelled")

type operationFlags struct {
	source           string
	dest             string
	compressionLevel string
	cleanup          string
	yes              bool
}

func newOperationCommand(ctx *commandContext, op pipeline.Operation) *cobra.Command {
	var flags operationFlags

	cmd := &cobra.Command{
		Use:   string(op),
		Short: op.Describe(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runOperation(cmd, ctx, cfg, op, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.source, "source", "s", "", "Folder to read disc images from")
	cmd.Flags().StringVarP(&flags.dest, "dest", "d", "", "Folder to write results into")
	cmd.Flags().StringVar(&flags.cleanup, "cleanup", "", "Source cleanup after the run: ask, always or never (default from config)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Delete processed sources without asking")
	if op == pipeline.CompressSquashFS {
		cmd.Flags().StringVarP(&flags.compressionLevel, "compression-level", "l", "",
			"fast, medium or maximum (default from config)")
	}
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func runOperation(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, op pipeline.Operation, flags operationFlags) error {
	out := cmd.OutOrStdout()
	started := time.Now()

	source, err := config.ExpandPath(flags.source)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dest, err := config.ExpandPath(flags.dest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	policy := cfg.Pipeline.Cleanup
	if strings.TrimSpace(flags.cleanup) != "" {
		policy = flags.cleanup
	}
	if flags.yes {
		policy = config.CleanupAlways
	}
	confirmer, err := cleanupConfirmer(policy, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	var fileLogger *slog.Logger
	if cfg.Logging.RunLogs {
		runLog, err := logging.OpenRunLog(logging.NewNop(), cfg.Paths.LogDir, string(op), cfg.Logging.Format, started)
		if err != nil {
			return err
		}
		defer runLog.Close()
		fileLogger = runLog.Logger
		logger = logging.TeeLogger(logger, fileLogger.Handler())
		if removed := logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays, runLog.Path); removed > 0 {
			logger.Debug("pruned old run logs", logging.Int("removed", removed))
		}
	}

	registry, err := ctx.registry()
	if err != nil {
		return err
	}
	display := newConsole(out, cmd.ErrOrStderr(), isTerminal(out) && isTerminal(cmd.ErrOrStderr()), fileLogger)

	opts := []pipeline.Option{
		pipeline.WithLogSink(display),
		pipeline.WithProgressSink(display),
		pipeline.WithConfirmer(confirmer),
		pipeline.WithToolTimeout(cfg.ToolTimeout()),
		pipeline.WithCleanupTimeout(cfg.CleanupTimeout()),
		pipeline.WithLogger(logger),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logging.WarnWithContext(logger, "run history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this run will not appear in b2pc history"),
			)
		} else {
			defer store.Close()
			opts = append(opts, pipeline.WithHistory(store))
		}
	}

	level := flags.compressionLevel
	if level == "" {
		level = cfg.Pipeline.CompressionLevel
	}
	req := pipeline.Request{Operation: op, Source: source, Dest: dest, CompressionLevel: level}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := pipeline.NewSession(registry, opts...).Run(runCtx, req)
	display.finish()

	notifier := notifications.NewService(cfg)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 15*time.Second)
	defer cancel()

	if runErr != nil {
		if err := notifier.NotifyRunFailed(notifyCtx, string(op), runErr); err != nil {
			logger.Warn("notification failed", logging.Error(err))
		}
		return runErr
	}

	fmt.Fprintln(out, renderSummary(summary))
	if failed := renderFailures(summary); failed != "" {
		fmt.Fprintln(out, failed)
	}
	if err := notifier.NotifyRunCompleted(notifyCtx, notifications.RunReport{
		Operation: string(op),
		Converted: summary.Converted,
		Skipped:   summary.Skipped,
		Errors:    summary.ErrorCount,
		Duration:  summary.Elapsed,
		Cancelled: summary.Cancelled,
	}); err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}

	switch {
	case summary.Cancelled:
		return errRunCancelled
	case summary.ErrorCount > 0:
		return fmt.Errorf("%s finished with %d error(s)", op, summary.ErrorCount)
	}
	return nil
}
