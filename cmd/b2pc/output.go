package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"b2pc/internal/fileutil"
	"b2pc/internal/pipeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows under headers in the rounded style; short rows are
// padded with empty cells.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSummary(s pipeline.Summary) string {
	var rows [][]string
	for _, c := range s.Counters() {
		rows = append(rows, []string{pipeline.CounterLabel(c.Key), fmt.Sprint(c.Value)})
	}
	if s.ArchiveErrors > 0 {
		rows = append(rows, []string{pipeline.CounterLabel("archiveErrors"), fmt.Sprint(s.ArchiveErrors)})
	}
	rows = append(rows,
		[]string{"Output Size", humanize.IBytes(uint64(outputBytes(s)))},
		[]string{"Elapsed", s.Elapsed.Round(100 * time.Millisecond).String()},
		[]string{"Cleaned Up", yesNo(s.CleanedUp)},
	)
	if s.Cancelled {
		rows = append(rows, []string{"Cancelled", yesNo(true)})
	}
	return renderTable([]string{string(s.Operation), "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// outputBytes totals the size of every output written or kept by the run.
func outputBytes(s pipeline.Summary) int64 {
	var total int64
	for _, it := range s.Items {
		if it.Status != pipeline.StatusSucceeded {
			continue
		}
		for _, out := range it.Outputs {
			if size := fileutil.Size(out); size > 0 {
				total += size
			}
		}
	}
	return total
}

func renderFailures(s pipeline.Summary) string {
	var rows [][]string
	for _, it := range s.Items {
		if it.Status != pipeline.StatusFailed {
			continue
		}
		rows = append(rows, []string{filepath.Base(it.Source), it.FailureKind(), it.Reason()})
	}
	if len(rows) == 0 {
		return ""
	}
	return renderTable([]string{"Failed Item", "Kind", "Reason"}, rows, nil)
}
