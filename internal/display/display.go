// Package display renders collector output in one of three ways: a plain
// console line per row, JSON, or a full terminal layout with column
// dropping, truncation, and status colorization — the three displayer
// families of original_source/pg_view/models/displayers.py
// (ConsoleDisplayer, JsonDisplayer, CursesDisplayer).
package display

import (
	"github.com/lesovsky/pgview/internal/collector"
	"github.com/lesovsky/pgview/internal/sample"
)

// Panel is one collector's rendered contribution for a tick: its identity,
// declared output columns, and the rows to show.
type Panel struct {
	Ident   string
	Prefix  string // optional human-readable header line, e.g. cluster summary
	Columns []collector.OutputColumn
	Rows    []sample.Row
}

// Displayer renders a full tick's worth of panels. Implementations never
// mutate the panels they're given.
type Displayer interface {
	Render(panels []Panel) (string, error)
}

// cook applies the cell-formatting rules shared by every displayer: Absent
// values render as the empty string, Bool as T/F (handled by Value.String
// already), and values longer than the column's maxw are truncated by
// removing the middle — mirroring the cooking step every displayer in
// displayers.py performs before a value reaches its presentation layer.
func cook(col collector.OutputColumn, v sample.Value) string {
	if v.IsAbsent() {
		return ""
	}
	s := v.String()
	if col.MaxWidth > 0 && len(s) > col.MaxWidth {
		s = truncateMiddle(s, col.MaxWidth)
	}
	return s
}

// truncateMiddle implements spec §4.8's cooking truncation rule: keep
// ⌊(maxw−2)/2⌋ runes from each end of s, joined by "..", so a long value
// (e.g. a query) stays recognizable at both its start and its end instead
// of losing everything past a fixed prefix.
func truncateMiddle(s string, maxw int) string {
	r := []rune(s)
	if len(r) <= maxw {
		return s
	}
	if maxw <= 2 {
		if maxw <= 0 {
			return ""
		}
		return string(r[:maxw])
	}
	half := (maxw - 2) / 2
	if half <= 0 {
		return ".."
	}
	return string(r[:half]) + ".." + string(r[len(r)-half:])
}
