package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"statsidx.io/statsidx/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#5C7A84")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	successStyle = lipgloss.NewStyle().Foreground(colorAccent)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// printer writes either structured documents or styled tables. Warnings go
// to stderr when stdout carries a structured document.
type printer struct {
	w      io.Writer
	errW   io.Writer
	format string
}

func newPrinter(cmd *cobra.Command, format string) printer {
	return printer{w: cmd.OutOrStdout(), errW: cmd.ErrOrStderr(), format: format}
}

func (p printer) structured() bool { return p.format != formatTable }

// emit writes v as json or yaml, or calls render for table output.
func (p printer) emit(v any, render func()) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	render()
	return nil
}

func (p printer) title(s string) {
	_, _ = fmt.Fprintln(p.w, titleStyle.Render("=== "+s+" ==="))
}

func (p printer) success(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (p printer) warn(format string, args ...any) {
	w := p.w
	if p.structured() {
		w = p.errW
	}
	_, _ = fmt.Fprintln(w, warningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

func (p printer) fail(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func (p printer) muted(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

func (p printer) line(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p printer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	_, _ = fmt.Fprintln(p.w, t.String())
}

var indexRowHeaders = []string{"Product ID", "Views", "Purchases", "Revenue", "Conv. Rate %", "AOV", "Tier", "Indexed At"}

func indexRowCells(rows []domain.IndexRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			fmt.Sprint(r.NaturalID),
			fmt.Sprint(r.Counters.ViewCount),
			fmt.Sprint(r.Counters.PurchaseCount),
			money(r.Counters.Revenue),
			r.ConversionRate.StringFixed(2) + "%",
			money(r.AverageOrderValue),
			string(r.Tier),
			timestamp(&r.IndexedAt),
		}
	}
	return out
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}
