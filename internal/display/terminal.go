package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lesovsky/pgview/internal/collector"
	"github.com/lesovsky/pgview/internal/sample"
)

// TerminalDisplayer renders a full-screen, multi-panel frame: a clock in
// the top right, one block per panel with a header row, status-colorized
// cells, a per-row "hidden column in trouble" indicator, and a bottom
// key-menu line — the Go equivalent of
// original_source/pg_view/models/outputs.py's curses renderer, built on
// this program's own Terminal primitive (see internal/terminal) instead of
// a curses binding.
type TerminalDisplayer struct {
	Width  int // current terminal column count, refreshed by the caller each tick
	Height int // current terminal row count, refreshed by the caller each tick
	Now    func() time.Time
}

func (d *TerminalDisplayer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *TerminalDisplayer) Render(panels []Panel) (string, error) {
	width := d.Width
	if width <= 0 {
		width = 80
	}
	height := d.Height
	if height <= 0 {
		height = 24
	}

	var b strings.Builder
	lines := 0
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
		lines++
	}

	clock := d.now().Format("15:04:05")
	writeLine(padRight("pgview", width-len(clock)) + clock)
	writeLine("")

	// Reserve the bottom key-menu line from the row budget.
	budget := height - 1
	if budget < 1 {
		budget = 1
	}

	innerWidth := width - 1 // column 0 is the per-row invisible-status indicator
	if innerWidth < 1 {
		innerWidth = width
	}

	for _, p := range panels {
		if lines >= budget {
			break
		}
		if p.Prefix != "" {
			writeLine(p.Prefix)
		}
		if len(p.Columns) == 0 {
			continue
		}

		shown, hidden := layoutColumns(p.Columns, p.Rows, innerWidth)

		writeLine(" " + renderHeaderLine(shown, innerWidth))

		for i, row := range p.Rows {
			if lines >= budget {
				break
			}
			if lines == budget-1 && i < len(p.Rows)-1 {
				// More rows exist than fit on screen: replace the last
				// visible row with a dotted placeholder rather than
				// silently truncating the list.
				writeLine(rowIndicator(hidden, row) + dotsLine(shown, innerWidth))
				break
			}
			writeLine(rowIndicator(hidden, row) + renderDataLine(shown, row, innerWidth))
		}
		writeLine("")
	}

	b.WriteString(truncateToWidth(helpLine(), width))
	return b.String(), nil
}

// layoutColumns decides which declared columns fit in width, in declared
// order: columns are added left to right until the next one would overflow
// the line; a column marked NoAutohide is always kept (and may instead be
// truncated rather than dropped). The final shown column absorbs any
// leftover width up to its MaxWidth, so a wide "query" column fills the
// line instead of leaving dead space. hidden lists every declared column
// that didn't make it into shown, so the caller can compute a per-row
// "something dropped is in trouble" indicator.
func layoutColumns(cols []collector.OutputColumn, rows []sample.Row, width int) (shown, hidden []collector.OutputColumn) {
	total := 0

	for _, c := range cols {
		w := c.Width
		if total+w+1 > width {
			if c.NoAutohide {
				w = width - total - 1
				if w < 1 {
					hidden = append(hidden, c)
					continue
				}
				c.Width = w
				shown = append(shown, c)
				total += w + 1
				continue
			}
			hidden = append(hidden, c)
			continue
		}
		shown = append(shown, c)
		total += w + 1
	}

	if n := len(shown); n > 0 {
		last := &shown[n-1]
		extra := width - total
		if extra > 0 {
			newWidth := last.Width + extra
			if last.MaxWidth > 0 && newWidth > last.MaxWidth {
				newWidth = last.MaxWidth
			}
			last.Width = newWidth
		}
	}

	return shown, hidden
}

// statusWorst returns the most severe status in a StatusFn result map,
// regardless of whether it's the whole-cell sentinel (-1) or a per-word
// entry.
func statusWorst(m map[int]int) int {
	worst := 0
	for _, v := range m {
		if v > worst {
			worst = v
		}
	}
	return worst
}

// rowIndicator implements spec §4.8 point 7: to the left of each row, emit
// a single colored character representing the worst status of any column
// that isn't currently visible (dropped for width, or off-screen), so a
// warning never disappears just because its column got hidden.
func rowIndicator(hidden []collector.OutputColumn, row sample.Row) string {
	worst := 0
	for _, c := range hidden {
		if c.StatusFn == nil {
			continue
		}
		if s := statusWorst(c.StatusFn(row[c.Name])); s > worst {
			worst = s
		}
	}
	if worst == 0 {
		return " "
	}
	return colorForStatus(worst).Sprint("!")
}

func renderHeaderLine(cols []collector.OutputColumn, width int) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(padTo(c.Header, c.Width, c.Align))
	}
	return truncateToWidth(b.String(), width)
}

func renderDataLine(cols []collector.OutputColumn, row sample.Row, width int) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(" ")
		}
		text := cook(c, row[c.Name])
		padded := padTo(text, c.Width, c.Align)
		if c.StatusFn != nil {
			padded = colorizeCell(padded, c.StatusFn(row[c.Name]))
		}
		b.WriteString(padded)
	}
	return truncateToWidth(b.String(), width)
}

// dotsLine renders a placeholder row of dots across each column's extent,
// used when more rows exist than fit within the terminal's height.
func dotsLine(cols []collector.OutputColumn, width int) string {
	var parts []string
	for _, c := range cols {
		parts = append(parts, strings.Repeat(".", c.Width))
	}
	return truncateToWidth(strings.Join(parts, " "), width)
}

// colorizeCell applies status coloring to an already-padded cell: whole
// cell when the status map carries the -1 sentinel, otherwise word by
// word, splitting on whitespace and leaving all whitespace (including
// alignment padding) untouched so column width is preserved exactly.
func colorizeCell(padded string, statuses map[int]int) string {
	if len(statuses) == 0 {
		return padded
	}
	if s, ok := statuses[-1]; ok {
		if s == 0 {
			return padded
		}
		return colorForStatus(s).Sprint(padded)
	}

	var b strings.Builder
	word := 0
	i, n := 0, len(padded)
	for i < n {
		start := i
		for i < n && padded[i] == ' ' {
			i++
		}
		b.WriteString(padded[start:i])
		if i >= n {
			break
		}
		start = i
		for i < n && padded[i] != ' ' {
			i++
		}
		w := padded[start:i]
		if s, ok := statuses[word]; ok && s != 0 {
			b.WriteString(colorForStatus(s).Sprint(w))
		} else {
			b.WriteString(w)
		}
		word++
	}
	return b.String()
}

func padTo(s string, width int, align collector.Alignment) string {
	if width <= 0 {
		return s
	}
	visibleLen := len([]rune(s))
	if visibleLen >= width {
		if width <= 1 {
			return string([]rune(s)[:width])
		}
		return string([]rune(s)[:width-1]) + "…"
	}
	pad := strings.Repeat(" ", width-visibleLen)
	if align == collector.AlignRight {
		return pad + s
	}
	return s + pad
}

func padRight(s string, width int) string {
	if width <= len(s) {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// truncateToWidth clips the rendered line to the terminal's edge. Because
// lines here may already contain ANSI escape sequences from
// colorForStatus, a naive rune-count truncation would cut mid-sequence;
// this program avoids that by truncating before colorization is applied to
// any cell that could legitimately overflow, so this is a plain safety net
// for the uncolored bytes.
func truncateToWidth(s string, width int) string {
	if !color.NoColor && strings.Contains(s, "\x1b[") {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}

func helpLine() string {
	return fmt.Sprintf("%-14s %-10s %-10s %-10s %-10s %-10s %-10s %-10s", "s: aux filter", "f: freeze", "u: units", "a: autohide", "t: trim", "r: realtime", "h: help", "q: quit")
}
