package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

// truncateWidth cuts s to at most width display cells, marking the cut with "...".
func truncateWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// fit truncates and pads s to exactly width cells.
func fit(s string, width int) string {
	return padToWidth(truncateWidth(s, width), width)
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + fit(text, width-2) + "│"
}

// columns renders side by side boxes of equal height. The last column takes
// the remaining width.
func columns(width int, cols ...[]string) string {
	n := len(cols)
	if n == 0 || width < 3*n+1 {
		return ""
	}
	colWidth := (width - n - 1) / n
	widths := make([]int, n)
	for i := range widths {
		widths[i] = colWidth
	}
	widths[n-1] = width - n - 1 - colWidth*(n-1)

	rows := 0
	for _, c := range cols {
		rows = max(rows, len(c))
	}

	border := func(left, mid, right string) string {
		parts := make([]string, n)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w)
		}
		return left + strings.Join(parts, mid) + right
	}

	lines := []string{border("┌", "┬", "┐")}
	for r := 0; r < rows; r++ {
		cells := make([]string, n)
		for i, c := range cols {
			text := ""
			if r < len(c) {
				text = c[r]
			}
			cells[i] = " " + fit(text, widths[i]-2) + " "
		}
		lines = append(lines, "│"+strings.Join(cells, "│")+"│")
	}
	lines = append(lines, border("├", "┴", "┤"))
	return strings.Join(lines, "\n")
}
