package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"b2pc/internal/config"
	"b2pc/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs or show the items of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRunItems(*run))
				return nil
			}

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, errors.New("run history is disabled ([history] enabled = false)")
	}
	return history.Open(cfg.HistoryPath())
}

// findRun resolves a full run id or a unique prefix of one among recent runs.
func findRun(cmd *cobra.Command, store *history.Store, id string) (*history.Run, error) {
	id = strings.TrimSpace(id)
	run, err := store.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	runs, err := store.Recent(cmd.Context(), 500)
	if err != nil {
		return nil, err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if match != "" {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = r.ID
		}
	}
	if match == "" {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return store.Get(cmd.Context(), match)
}

func runState(r history.Run) string {
	switch {
	case r.ErrorMessage != "":
		return "failed"
	case r.Cancelled:
		return "cancelled"
	case r.ErrorCount > 0:
		return "errors"
	default:
		return "ok"
	}
}

func renderRuns(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Operation,
			humanize.Time(r.StartedAt),
			r.Duration().Round(time.Second).String(),
			fmt.Sprint(r.Converted),
			fmt.Sprint(r.Skipped),
			fmt.Sprint(r.ErrorCount),
			runState(r),
		})
	}
	return renderTable(
		[]string{"Run", "Operation", "Started", "Took", "Done", "Skipped", "Errors", "State"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderRunItems(r history.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", r.ID, r.Operation)
	fmt.Fprintf(&b, "Source: %s\nDestination: %s\n", r.SourceDir, r.DestDir)
	if r.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.ErrorMessage)
	}
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		out := ""
		if it.OutputPath != "" {
			out = filepath.Base(it.OutputPath)
		}
		rows = append(rows, []string{filepath.Base(it.SourcePath), it.Status, out, it.FailureKind})
	}
	b.WriteString(renderTable([]string{"Item", "Status", "Output", "Failure"}, rows, nil))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
