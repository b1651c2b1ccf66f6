package display

import (
	"strings"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/lesovsky/pgview/internal/collector"
)

// LineDisplayer renders each panel as a header line followed by a plain
// table, one row per sampled entity, with no cursor repositioning — the
// mode used for `-o console` and when output isn't a terminal.
type LineDisplayer struct {
	// Colorize controls whether status-classified cells get ANSI color.
	// buildDisplayer always sets it for -o console; fatih/color itself
	// emits no escape codes when stdout isn't a TTY.
	Colorize bool
}

func (d *LineDisplayer) Render(panels []Panel) (string, error) {
	var b strings.Builder

	for _, p := range panels {
		if p.Prefix != "" {
			b.WriteString(p.Prefix)
			b.WriteString("\n")
		}
		if len(p.Columns) == 0 {
			continue
		}

		tbl := table.New(headerRow(p.Columns)...)
		tbl.WithWriter(&b)

		for _, row := range p.Rows {
			vals := make([]interface{}, len(p.Columns))
			for i, col := range p.Columns {
				text := cook(col, row[col.Name])
				if d.Colorize && col.StatusFn != nil {
					text = colorForStatus(statusWorst(col.StatusFn(row[col.Name]))).Sprint(text)
				}
				vals[i] = text
			}
			tbl.AddRow(vals...)
		}
		tbl.Print()
		b.WriteString("\n")
	}

	return b.String(), nil
}

func headerRow(cols []collector.OutputColumn) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// colorForStatus maps a collector's 0/1/2 status classification to the
// same ok/warning/critical palette the terminal displayer uses, so
// `-o console` output and the live terminal view agree on meaning.
func colorForStatus(status int) *color.Color {
	switch status {
	case 2:
		return color.New(color.FgRed, color.Bold)
	case 1:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
