package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"b2pc/internal/chdinfo"
	"b2pc/internal/report"
	"b2pc/internal/toolrun"
)

func newChdInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chd-info <file.chd>...",
		Short: "Show media type, sizes and track count of CHD images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			reader := chdinfo.NewReader(toolrun.New(registry, report.NewReporter(nil, nil),
				toolrun.WithTimeout(cfg.ToolTimeout())))

			var infos []chdinfo.Info
			for _, path := range args {
				info, err := reader.Read(cmd.Context(), path)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}
			if asJSON {
				return writeJSON(cmd, infos)
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					filepath.Base(info.Path),
					info.Media,
					fmt.Sprintf("v%d", info.Version),
					humanize.IBytes(uint64(max(info.LogicalSize, 0))),
					humanize.IBytes(uint64(max(info.FileSize, 0))),
					fmt.Sprintf("%.1f%%", info.Ratio),
					fmt.Sprint(info.Tracks),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Media", "Version", "Logical Size", "CHD Size", "Ratio", "Tracks"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
