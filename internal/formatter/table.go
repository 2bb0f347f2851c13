// Package formatter renders stored objects and index entries for the terminal.
package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/objectstore"
)

const timeLayout = "2006-01-02 15:04:05"

type TableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) FormatObjects(objects []objectstore.ObjectInfo) string {
	if len(objects) == 0 {
		return "No reports found"
	}

	t := f.newTable("Key", "Size", "Last Modified")
	for _, o := range objects {
		modified := ""
		if !o.LastModified.IsZero() {
			modified = o.LastModified.UTC().Format(timeLayout)
		}
		t.Row(o.Key, humanSize(o.Size), modified)
	}
	return t.String()
}

func (f *TableFormatter) FormatEntries(entries []incident.IndexEntry) string {
	if len(entries) == 0 {
		return "No matching reports"
	}

	t := f.newTable("Incident", "Category", "Title", "Date", "Object")
	for _, e := range entries {
		t.Row(
			strconv.Itoa(e.IncidentID),
			string(e.Category),
			truncateString(e.Title, 40),
			e.Date,
			truncateString(e.ObjectKey, 50),
		)
	}
	return t.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncateString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
