// Package collector implements the declarative collector framework used by
// every sampled subsystem (host, system, memory, partitions, Postgres
// processes): each tick a collector refreshes its current row set, computes
// a diff against the previous tick, and projects the result through an
// output transform for display.
package collector

import (
	"time"

	"github.com/lesovsky/pgview/internal/sample"
)

// Collector is implemented by every concrete sampler. The main loop drives
// all collectors through the same Tick/Refresh/Diff sequence each
// iteration, then reads Rows/Columns for display.
type Collector interface {
	// Ident names the collector for prefixing and error messages.
	Ident() string
	// Tick advances the internal counter; NeedsRefresh reports whether this
	// tick should actually resample (collectors may refresh less often
	// than the main loop ticks).
	Tick()
	NeedsRefresh() bool
	// Refresh samples fresh data into the current row slot, rotating the
	// previous current row into the previous slot first.
	Refresh() error
	// NeedsDiffs reports whether this collector produces diff rows at all
	// (the host collector, for instance, never does).
	NeedsDiffs() bool
	// Diff computes rowsDiff from rowsPrev/rowsCur.
	Diff()
	// Rows returns the rows a displayer should render: the diffed rows if
	// NeedsDiffs, else the current rows verbatim.
	Rows() []sample.Row
	// Columns returns the output projection in declared order.
	Columns() []OutputColumn
}

// InFn converts one raw source field (already a string, as read from
// /proc or scanned from a SQL row) into a sample.Value.
type InFn func(raw string) sample.Value

// DiffFn computes a custom diff value from the current and previous raw
// values for one column; used when the default rate-of-change formula
// (cur-prev)/dt doesn't apply (e.g. cumulative maxima, strings).
type DiffFn func(name string, cur, prev sample.Value) sample.Value

// StatusFn classifies a cell's value into one or more display statuses,
// used by the terminal displayer to pick a color: 0 = ok, 1 = warning,
// 2 = critical by convention; collectors may define their own thresholds.
// The returned map is keyed by word index (splitting the cell on
// whitespace) so a multi-token cell like a load average can carry a
// distinct status per token; a single entry keyed -1 instead colors the
// whole cell, per spec §4.8 point 6.
type StatusFn func(v sample.Value) map[int]int

// wholeCellStatus builds the common single-status StatusFn result.
func wholeCellStatus(s int) map[int]int { return map[int]int{-1: s} }

// ListColumn describes one attribute extracted from a positional ([]string)
// source row, e.g. a split /proc/pid/stat line.
type ListColumn struct {
	Name string
	Pos  int
	InFn InFn
}

// DictColumn describes one attribute extracted from a keyed (map[string]
// string) source row, e.g. a SQL result row addressed by column name.
type DictColumn struct {
	Name string
	Key  string
	InFn InFn
}

// DiffColumn controls how one named attribute is turned into a diff cell.
type DiffColumn struct {
	Name string
	// Diff false copies the current value through unchanged (e.g. names,
	// pids, statuses that aren't rates).
	Diff bool
	// Fn overrides the default (cur-prev)/dt rate computation.
	Fn DiffFn
}

// OutputColumn describes how one attribute is projected for display:
// header text, width, alignment, and an optional status classifier used
// for colorization.
type OutputColumn struct {
	Name        string
	Header      string
	Width       int
	MaxWidth    int
	Align       Alignment
	StatusFn    StatusFn
	NoAutohide  bool
	HideIfOK    bool
	Highlight   bool
}

// Alignment controls how a cell is padded inside its column width.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BaseCollector implements the two-slot ring buffer and the default diff
// math shared by every concrete collector. Concrete types embed it and
// supply their own Refresh/Columns.
type BaseCollector struct {
	ident string

	tickCount       int
	ticksPerRefresh int
	produceDiffs    bool

	rowsPrev []sample.Row
	rowsCur  []sample.Row
	rowsDiff []sample.Row

	lastRefresh time.Time
	prevRefresh time.Time

	diffColumns []DiffColumn
	outColumns  []OutputColumn
}

// NewBaseCollector builds the shared scaffolding; ticksPerRefresh of 1
// means refresh on every tick (the common case).
func NewBaseCollector(ident string, ticksPerRefresh int, produceDiffs bool, diffCols []DiffColumn, outCols []OutputColumn) BaseCollector {
	if ticksPerRefresh < 1 {
		ticksPerRefresh = 1
	}
	return BaseCollector{
		ident:           ident,
		ticksPerRefresh: ticksPerRefresh,
		produceDiffs:    produceDiffs,
		diffColumns:     diffCols,
		outColumns:      outCols,
	}
}

func (b *BaseCollector) Ident() string { return b.ident }

func (b *BaseCollector) Tick() { b.tickCount++ }

func (b *BaseCollector) NeedsRefresh() bool {
	return b.tickCount%b.ticksPerRefresh == 0
}

func (b *BaseCollector) NeedsDiffs() bool { return b.produceDiffs }

func (b *BaseCollector) Columns() []OutputColumn { return b.outColumns }

func (b *BaseCollector) Rows() []sample.Row {
	if b.produceDiffs {
		return b.rowsDiff
	}
	return b.rowsCur
}

// setCurrent rotates the ring buffer: what was current becomes previous,
// and newRows becomes current. Called by concrete Refresh implementations
// once they've sampled newRows.
func (b *BaseCollector) setCurrent(newRows []sample.Row, now time.Time) {
	b.rowsPrev = b.rowsCur
	b.rowsCur = newRows
	b.prevRefresh = b.lastRefresh
	b.lastRefresh = now
}

// Diff computes rowsDiff by pairing rowsCur and rowsPrev rows keyed by the
// caller-supplied key function, then applying the declared diff columns.
// Rows present only in rowsCur (new since last sample) are emitted with
// diff columns zeroed; rows present only in rowsPrev (gone since last
// sample) are dropped, matching base_collector.py's behavior of only
// diffing rows that survive between samples.
func (b *BaseCollector) Diff(keyFn func(sample.Row) string) {
	if !b.produceDiffs {
		return
	}

	dt := b.lastRefresh.Sub(b.prevRefresh).Seconds()
	if dt <= 0 {
		dt = 1
	}

	prevByKey := make(map[string]sample.Row, len(b.rowsPrev))
	for _, r := range b.rowsPrev {
		prevByKey[keyFn(r)] = r
	}

	out := make([]sample.Row, 0, len(b.rowsCur))
	for _, cur := range b.rowsCur {
		prev, ok := prevByKey[keyFn(cur)]
		out = append(out, b.produceDiffRow(cur, prev, ok, dt))
	}
	b.rowsDiff = out
}

// produceDiffRow builds one diff row from a current/previous pair, mirroring
// _produce_diff_row in base_collector.py: each declared diff column either
// copies the current value verbatim (Diff:false), uses a custom Fn, or
// falls back to (cur-prev)/dt. Columns absent from the declared diff list
// pass through from cur unchanged (e.g. identity columns like pid/name).
func (b *BaseCollector) produceDiffRow(cur, prev sample.Row, havePrev bool, dt float64) sample.Row {
	out := cur.Clone()

	for _, dc := range b.diffColumns {
		curVal, curOK := cur[dc.Name]
		if !curOK {
			out[dc.Name] = sample.NewAbsent()
			continue
		}

		var prevVal sample.Value
		prevOK := false
		if havePrev {
			prevVal, prevOK = prev[dc.Name]
		}

		switch {
		case !dc.Diff:
			out[dc.Name] = curVal
		case dc.Fn != nil:
			out[dc.Name] = dc.Fn(dc.Name, curVal, prevVal)
		case !prevOK:
			// No previous sample to diff against yet; report zero rate
			// rather than a bogus absolute value.
			out[dc.Name] = sample.NewNumber(0)
		default:
			cv, cok := curVal.Float64()
			pv, pok := prevVal.Float64()
			if !cok || !pok {
				out[dc.Name] = sample.NewAbsent()
				continue
			}
			rate := (cv - pv) / dt
			if rate < 0 {
				// Counter reset (e.g. process restart, stat wraparound).
				rate = 0
			}
			out[dc.Name] = sample.NewNumber(rate)
		}
	}
	return out
}
