package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dlinter/dlin/internal/registry"
	"github.com/dlinter/dlin/internal/rules"
	tt "github.com/dlinter/dlin/internal/types"
)

const maxDescriptionWidth = 64

var rulesCmd = &cobra.Command{
	Use:   "rules [rule...]",
	Short: "List the lint rules, or explain the given ones",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := loadEngine(nil)
		if err != nil {
			logger.Fatal("Failed to initialize lint engine", zap.Error(err))
		}

		metas := append(engine.Rules(), registry.Meta)
		if len(args) == 0 {
			writeRuleTable(os.Stdout, metas)
			return
		}
		if err := explainRules(os.Stdout, metas, args); err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
	},
}

func writeRuleTable(w io.Writer, metas []rules.Meta) {
	header := []string{"ID", "NAME", "CATEGORY", "SEVERITY", "DESCRIPTION"}
	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		rows = append(rows, []string{
			m.ID,
			m.Name,
			m.Category.String(),
			m.Severity.String(),
			runewidth.Truncate(m.Description, maxDescriptionWidth, "..."),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	bold := color.New(color.Bold)
	writeRow(w, header, widths, func(_ int, s string) string { return bold.Sprint(s) })
	for j, row := range rows {
		sev := metas[j].Severity
		writeRow(w, row, widths, func(i int, s string) string {
			if i == 3 {
				return severityColor(sev).Sprint(s)
			}
			return s
		})
	}
}

// writeRow pads before styling so escape codes do not count as width.
func writeRow(w io.Writer, cells []string, widths []int, style func(int, string) string) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = style(i, cell)
			continue
		}
		parts[i] = style(i, runewidth.FillRight(cell, widths[i]))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func severityColor(s tt.Severity) *color.Color {
	switch s {
	case tt.SeverityError:
		return color.New(color.FgRed)
	case tt.SeverityWarning:
		return color.New(color.FgYellow)
	case tt.SeverityInfo:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Faint)
	}
}

func explainRules(w io.Writer, metas []rules.Meta, keys []string) error {
	for _, key := range keys {
		meta, ok := findMeta(metas, key)
		if !ok {
			return fmt.Errorf("unknown rule %q", key)
		}
		fmt.Fprintf(w, "%s (%s)\n", meta.ID, meta.Name)
		fmt.Fprintf(w, "  category: %s\n", meta.Category)
		fmt.Fprintf(w, "  severity: %s\n", meta.Severity)
		fmt.Fprintf(w, "  %s\n", meta.Description)
		if meta.Explanation != "" {
			fmt.Fprintf(w, "\n  %s\n", meta.Explanation)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func findMeta(metas []rules.Meta, key string) (rules.Meta, bool) {
	for _, m := range metas {
		if strings.EqualFold(m.ID, key) || strings.EqualFold(m.Name, key) {
			return m, true
		}
	}
	return rules.Meta{}, false
}
