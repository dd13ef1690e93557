package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kalambet/emconsole/internal/board"
	"github.com/kalambet/emconsole/internal/emergency"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func priorityColor(p emergency.Priority) string {
	switch p {
	case emergency.PriorityCritical:
		return colorMagenta
	case emergency.PriorityHigh:
		return colorRed
	case emergency.PriorityMedium:
		return colorYellow
	default:
		return colorGreen
	}
}

// formatRecord renders one board row. The focused row is marked with '>'.
func formatRecord(rec emergency.Record, selected bool) string {
	marker := " "
	if selected {
		marker = ">"
	}
	p := rec.EffectivePriority()
	prio := colorize(priorityColor(p), fmt.Sprintf("%-8s", strings.ToUpper(string(p))))
	status := rec.Status
	if status == "" {
		status = "-"
	}
	nature := rec.EffectiveNature()
	if nature == "" {
		nature = "-"
	}
	updated := "-"
	if t := rec.SortKey(); !t.IsZero() {
		updated = t.Local().Format("15:04:05")
	}
	return fmt.Sprintf("%s %s %s  %-10s %-16s %-24s %s",
		marker, colorize(colorCyan, fmt.Sprintf("%-6s", rec.Tail())), prio, status, rec.DisplayCaller(), nature, updated)
}

// describeChange renders a board change as one log line.
func describeChange(c board.Change) string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if len(c.IDs) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(c.IDs, ","))
	}
	if c.SelectionChanged {
		if c.Selected == "" {
			b.WriteString(" (selection cleared)")
		} else {
			b.WriteString(" (selected " + c.Selected + ")")
		}
	}
	return b.String()
}
