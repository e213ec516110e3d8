package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/target/marketpulse/internal/domain/model"
	"github.com/target/marketpulse/internal/util"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// shouldColorize is true only for terminals, and never when NO_COLOR is set.
func shouldColorize(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(s model.JobStatus) string {
	switch s {
	case model.JobStatusCompleted:
		return ansiGreen
	case model.JobStatusFailed:
		return ansiRed
	default:
		return ansiYellow
	}
}

func renderStatus(s model.JobStatus, colorize bool) string {
	if !colorize {
		return string(s)
	}
	return statusColor(s) + string(s) + ansiReset
}

// renderView prints the polling projection of one job.
func renderView(w io.Writer, v model.StatusView, colorize bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %s\n", v.ID)
	fmt.Fprintf(&b, "Kind:     %s\n", v.Kind)
	fmt.Fprintf(&b, "Status:   %s\n", renderStatus(v.Status, colorize))
	fmt.Fprintf(&b, "Progress: %d%%\n", v.Progress)
	if v.Error != "" {
		fmt.Fprintf(&b, "Error:    %s", v.Error)
		if v.ErrorCode != "" {
			fmt.Fprintf(&b, " (%s)", v.ErrorCode)
		}
		b.WriteString("\n")
	}
	if len(v.Messages) > 0 {
		b.WriteString("Messages:\n")
		for _, m := range v.Messages {
			fmt.Fprintf(&b, "  %s  %-10s %s\n", m.At.Local().Format("15:04:05"), m.Source, m.Text)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// renderHistory renders one page of history as a table.
func renderHistory(page model.HistoryPage, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Kind", "Status", "Progress", "Created", "Took", "Error"})
	for _, item := range page.Items {
		tw.AppendRow(table.Row{
			item.ID,
			string(item.Kind),
			renderStatus(item.Status, colorize),
			strconv.Itoa(item.Progress) + "%",
			item.CreatedAt.Local().Format("2006-01-02 15:04"),
			util.FormatElapsed(item.CreatedAt, item.FinishedAt),
			truncate(item.Error, 48),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.SetCaption("page %d of %d, %d jobs", page.Page, max(page.TotalPages, 1), page.Total)
	return tw.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
