package display

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/collector"
	"github.com/lesovsky/pgview/internal/sample"
)

// forceColor makes colorForStatus's output deterministic regardless of
// whether the test process's stdout is a TTY (fatih/color otherwise
// auto-detects and silently no-ops its Sprint calls outside a terminal).
func forceColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })
}

func wideColumns() []collector.OutputColumn {
	return []collector.OutputColumn{
		{Name: "pid", Header: "PID", Width: 7, Align: collector.AlignRight},
		{Name: "user", Header: "USER", Width: 12, Align: collector.AlignLeft},
		{Name: "database", Header: "DATABASE", Width: 12, Align: collector.AlignLeft},
		{Name: "state", Header: "STATE", Width: 8, Align: collector.AlignLeft},
		{Name: "query", Header: "QUERY", Width: 40, MaxWidth: 200, Align: collector.AlignLeft},
	}
}

// TestLayoutColumnsNeverExceedsWidth checks that however many declared
// columns would overflow a narrow terminal, the rendered line never crosses
// the available width, for a spread of widths.
func TestLayoutColumnsNeverExceedsWidth(t *testing.T) {
	cols := wideColumns()
	row := sample.Row{
		"pid": sample.NewNumber(4213), "user": sample.NewText("postgres"),
		"database": sample.NewText("bench"), "state": sample.NewText("active"),
		"query": sample.NewText(strings.Repeat("x", 300)),
	}

	for _, width := range []int{20, 40, 60, 80, 120, 200} {
		shown, _ := layoutColumns(cols, []sample.Row{row}, width)
		header := renderHeaderLine(shown, width)
		data := renderDataLine(shown, row, width)

		assert.LessOrEqual(t, len([]rune(header)), width, "width=%d header overflow", width)
		assert.LessOrEqual(t, len([]rune(data)), width, "width=%d data overflow", width)
	}
}

// TestLayoutColumnsDropsInDeclaredOrder checks that under width pressure,
// columns are dropped starting with the ones declared later, preserving
// earlier ones first, except a column marked NoAutohide which is truncated
// instead of dropped.
func TestLayoutColumnsDropsInDeclaredOrder(t *testing.T) {
	cols := []collector.OutputColumn{
		{Name: "a", Header: "A", Width: 10},
		{Name: "b", Header: "B", Width: 10},
		{Name: "c", Header: "C", Width: 10},
	}
	shown, _ := layoutColumns(cols, nil, 15)

	var names []string
	for _, c := range shown {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a"}, names)
}

// TestColorizeCellWholeCellSentinel checks that a -1-keyed status map colors
// the entire padded cell, per spec.md §4.8 point 6's whole-cell case.
func TestColorizeCellWholeCellSentinel(t *testing.T) {
	forceColor(t)
	out := colorizeCell("active  ", map[int]int{-1: 2})
	assert.Contains(t, out, "active")
	assert.NotEqual(t, "active  ", out, "expected ANSI wrapping for a non-ok whole-cell status")
}

// TestColorizeCellWholeCellOK checks that a whole-cell status of 0 leaves the
// cell byte-for-byte untouched (no ANSI wrapping for the ok case).
func TestColorizeCellWholeCellOK(t *testing.T) {
	assert.Equal(t, "active  ", colorizeCell("active  ", map[int]int{-1: 0}))
}

// TestColorizeCellPerWord checks that without the -1 sentinel, only the
// flagged word gets colorized and whitespace is preserved exactly, so column
// alignment survives colorization.
func TestColorizeCellPerWord(t *testing.T) {
	forceColor(t)
	padded := "25.00 10.00  5.00"
	out := colorizeCell(padded, map[int]int{0: 2})
	assert.Contains(t, out, "10.00  5.00", "untouched words/whitespace must pass through verbatim")
	assert.NotContains(t, out, padded, "the flagged word must have been wrapped, changing the raw string")
}

func TestColorizeCellNoStatusesUntouched(t *testing.T) {
	assert.Equal(t, "plain", colorizeCell("plain", map[int]int{}))
}

func TestStatusWorstPicksMax(t *testing.T) {
	assert.Equal(t, 2, statusWorst(map[int]int{0: 1, 1: 2, 2: 0}))
	assert.Equal(t, 0, statusWorst(map[int]int{-1: 0}))
}

// TestRowIndicatorReflectsHiddenColumnStatus checks spec.md §4.8 point 7: a
// row gets a left-edge warning character only when a column NOT currently
// shown (hidden for width) carries a non-ok status.
func TestRowIndicatorReflectsHiddenColumnStatus(t *testing.T) {
	hidden := []collector.OutputColumn{
		{Name: "locked_by", StatusFn: func(v sample.Value) map[int]int {
			if v.IsAbsent() {
				return map[int]int{-1: 0}
			}
			return map[int]int{-1: 2}
		}},
	}
	row := sample.Row{"locked_by": sample.NewNumber(123)}
	assert.NotEqual(t, " ", rowIndicator(hidden, row))

	okRow := sample.Row{"locked_by": sample.NewAbsent()}
	assert.Equal(t, " ", rowIndicator(hidden, okRow))
}

func TestRowIndicatorNoHiddenColumns(t *testing.T) {
	assert.Equal(t, " ", rowIndicator(nil, sample.Row{}))
}

// TestDotsLineMatchesColumnExtent checks the row-overflow placeholder spans
// exactly the declared column widths, per spec.md §4.8 point 5.
func TestDotsLineMatchesColumnExtent(t *testing.T) {
	cols := []collector.OutputColumn{{Name: "a", Width: 3}, {Name: "b", Width: 5}}
	assert.Equal(t, "... .....", dotsLine(cols, 80))
}

// TestRenderReplacesOverflowRowWithDots checks that when more rows exist
// than the terminal height can show, the last visible line is the dotted
// placeholder rather than a silently dropped row.
func TestRenderReplacesOverflowRowWithDots(t *testing.T) {
	d := &TerminalDisplayer{Width: 40, Height: 5, Now: func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }}
	rows := make([]sample.Row, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, sample.Row{
			"pid": sample.NewNumber(float64(i)), "user": sample.NewText("postgres"),
			"database": sample.NewText("bench"), "state": sample.NewText("active"),
			"query": sample.NewText("select 1"),
		})
	}
	panels := []Panel{{Ident: "postgres", Columns: wideColumns(), Rows: rows}}

	out, err := d.Render(panels)
	assert.NoError(t, err)
	assert.Contains(t, out, "...", "expected a dotted placeholder row for the overflowing rows")
}

func TestTerminalDisplayerRenderFitsWidth(t *testing.T) {
	d := &TerminalDisplayer{Width: 40, Now: func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }}
	panels := []Panel{{
		Ident:   "postgres",
		Columns: wideColumns(),
		Rows: []sample.Row{{
			"pid": sample.NewNumber(1), "user": sample.NewText("postgres"),
			"database": sample.NewText("bench"), "state": sample.NewText("active"),
			"query": sample.NewText("select 1"),
		}},
	}}

	out, err := d.Render(panels)
	assert.NoError(t, err)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 40)
	}
}
