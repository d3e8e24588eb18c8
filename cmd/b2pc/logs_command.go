package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"b2pc/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		operation string
		lines     int
		follow    bool
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the latest run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				files, err := logs.List(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(files))
				for _, f := range files {
					rows = append(rows, []string{
						f.Operation,
						f.Started.Local().Format("2006-01-02 15:04:05"),
						humanize.IBytes(uint64(max(f.Size, 0))),
						filepath.Base(f.Path),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Operation", "Started", "Size", "File"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			}

			latest, err := logs.Latest(cfg.Paths.LogDir, operation)
			if errors.Is(err, logs.ErrNoLogs) {
				fmt.Fprintf(out, "No run logs in %s\n", cfg.Paths.LogDir)
				return nil
			}
			if err != nil {
				return err
			}
			tail, offset, err := logs.Last(latest.Path, lines)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "==> %s <==\n", latest.Path)
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, latest.Path, offset, 250*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().StringVarP(&operation, "operation", "o", "", "Only consider logs of this operation")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&list, "list", false, "List run logs instead of printing one")
	return cmd
}
