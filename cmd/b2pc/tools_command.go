package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"b2pc/internal/preflight"
)

func newToolsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check that every external converter is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			missing := 0
			var rows [][]string
			for _, status := range registry.Status() {
				state := "ok"
				if !status.Available {
					state = "missing"
					missing++
				}
				if status.Detail != "" {
					state = fmt.Sprintf("%s (%s)", state, status.Detail)
				}
				rows = append(rows, []string{string(status.Name), status.Path, state, status.Description})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Path", "Status", "Used For"}, rows, nil))

			rows = rows[:0]
			for _, result := range preflight.RunAll(cfg) {
				rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
				if !result.Passed {
					missing++
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Passed", "Detail"}, rows, nil))

			if missing > 0 {
				return fmt.Errorf("%d check(s) failed", missing)
			}
			return nil
		},
	}
}
