package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mrsinham/dicombatch/internal/sorter"
)

const maxDetailWidth = 80

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Headline is the one-line summary of a conversion run.
func (r *Report) Headline() string {
	s := r.Summary
	line := fmt.Sprintf("%d structure sets: %d converted, %d skipped, %d failed",
		s.Total, s.Succeeded, s.Skipped, s.Failed)
	style := okStyle
	if s.Failed > 0 {
		style = warnStyle
	}
	return style.Render(line) + " " + mutedStyle.Render("in "+r.Elapsed().Round(time.Millisecond).String())
}

// FailureTable renders the failed entries, or "" when there are none.
func (r *Report) FailureTable() string {
	failed := r.Failures()
	if len(failed) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(failed))
	for _, e := range failed {
		rows = append(rows, []string{e.RTStruct, orDash(e.SeriesDir), truncate(e.Detail, maxDetailWidth)})
	}
	return renderTable([]string{"RTSTRUCT", "SERIES", "ERROR"}, rows, nil)
}

// Print writes the headline, the failure table and the report location.
func (r *Report) Print(w io.Writer, reportPath, errorLogPath string) {
	fmt.Fprintln(w, r.Headline())
	if table := r.FailureTable(); table != "" {
		fmt.Fprintln(w, table)
	}
	if reportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", reportPath)
	}
	if r.Summary.Failed > 0 && errorLogPath != "" {
		fmt.Fprintf(w, "Error log: %s\n", errorLogPath)
	}
}

// SortSummary renders sort totals as a two-column table.
func SortSummary(stats sorter.Stats, elapsed time.Duration) string {
	rows := [][]string{
		{"linked", humanize.Comma(int64(stats.Linked))},
		{"copied", humanize.Comma(int64(stats.Copied))},
		{"skipped", humanize.Comma(int64(stats.Skipped))},
		{"failed", humanize.Comma(int64(stats.Failed))},
		{"bytes written", humanize.Bytes(uint64(stats.Bytes))},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"FILES", "COUNT"}, rows, []text.Align{text.AlignLeft, text.AlignRight})
}

// ScanSummary renders a modality histogram.
func ScanSummary(counts map[string]int, order []string) string {
	rows := make([][]string, 0, len(order))
	for _, key := range order {
		rows = append(rows, []string{key, humanize.Comma(int64(counts[key]))})
	}
	return renderTable([]string{"MODALITY", "FILES"}, rows, []text.Align{text.AlignLeft, text.AlignRight})
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= width {
		return s
	}
	return string([]rune(s)[:width-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
