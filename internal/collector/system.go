package collector

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lesovsky/pgview/internal/pgvlog"
	"github.com/lesovsky/pgview/internal/sample"
)

// cpuFields lists the raw /proc/stat counters this collector tracks, in the
// order they diff. The percentage shown for each is Δfield / Σ(all
// Δfields) for the tick, not Δfield/(Δt·ncores): a deliberate deviation
// from a "textbook" CPU percentage, preserved from the reference tool for
// numeric parity with its historical output.
var cpuFields = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal", "guest"}

// SystemCollector samples aggregate CPU ticks and scheduler counters from
// /proc/stat. It produces diffs: per-field CPU shares plus a context-switch
// rate; the process-queue counts (procs_running/procs_blocked) are copied
// through as sampled.
type SystemCollector struct {
	BaseCollector
}

// NewSystemCollector builds the collector with declared diff/output
// columns for the nine CPU buckets plus ctxt/procs_running/procs_blocked.
func NewSystemCollector(ticksPerRefresh int) *SystemCollector {
	var diffCols []DiffColumn
	var outCols []OutputColumn
	for _, f := range cpuFields {
		diffCols = append(diffCols, DiffColumn{Name: f, Diff: true, Fn: cpuShareFn})
		outCols = append(outCols, OutputColumn{Name: f, Header: strings.ToUpper(f[:1]) + f[1:], Width: 6, Align: AlignRight})
	}
	diffCols = append(diffCols,
		DiffColumn{Name: "ctxt", Diff: true},
		DiffColumn{Name: "procs_running", Diff: false},
		DiffColumn{Name: "procs_blocked", Diff: false},
	)
	outCols = append(outCols,
		OutputColumn{Name: "ctxt", Header: "CTXT/S", Width: 9, Align: AlignRight},
		OutputColumn{Name: "procs_running", Header: "RUN", Width: 4, Align: AlignRight},
		OutputColumn{Name: "procs_blocked", Header: "BLOCKED", Width: 8, Align: AlignRight, StatusFn: blockedStatus},
	)

	return &SystemCollector{BaseCollector: NewBaseCollector("system", ticksPerRefresh, true, diffCols, outCols)}
}

func blockedStatus(v sample.Value) map[int]int {
	n, ok := v.Float64()
	if !ok {
		return wholeCellStatus(0)
	}
	switch {
	case n > 2:
		return wholeCellStatus(2)
	case n > 0:
		return wholeCellStatus(1)
	default:
		return wholeCellStatus(0)
	}
}

// cpuShareFn is installed on every CPU bucket; it doesn't compute its own
// final value (that needs the sum across all buckets, done in Diff below),
// it returns the bucket's raw delta (cur-prev, clamped at zero, or zero when
// either side is missing). The division by the per-row Σdelta happens in
// Diff once every bucket's delta is known.
func cpuShareFn(_ string, cur, prev sample.Value) sample.Value {
	c, cok := cur.Float64()
	p, pok := prev.Float64()
	if !cok || !pok {
		return sample.NewNumber(0)
	}
	d := c - p
	if d < 0 {
		d = 0
	}
	return sample.NewNumber(d)
}

func (c *SystemCollector) Refresh() error {
	stat, err := readProcStat("/proc/stat")
	if err != nil {
		return fmt.Errorf("system: %w", err)
	}
	c.setCurrent([]sample.Row{stat}, time.Now())
	return nil
}

// Diff overrides the default per-field rate formula: after computing raw
// deltas via cpuShareFn, it renormalizes the nine CPU buckets so they sum
// to (approximately) 100, per the Σdelta convention above.
func (c *SystemCollector) Diff() {
	c.BaseCollector.Diff(func(sample.Row) string { return "system" })

	for i, row := range c.rowsDiff {
		var sum float64
		for _, f := range cpuFields {
			if v, ok := row[f].Float64(); ok {
				sum += v
			}
		}
		if sum <= 0 {
			continue
		}
		for _, f := range cpuFields {
			v, ok := row[f].Float64()
			if !ok {
				continue
			}
			row[f] = sample.NewNumber(100 * v / sum)
		}
		c.rowsDiff[i] = row
	}
}

// readProcStat parses the aggregate "cpu" line plus ctxt/procs_running/
// procs_blocked from /proc/stat, matching the field layout the teacher's
// own /proc/stat parser (internal/collector/linux_cpu.go, read for
// grounding) uses for the CPU line, extended with the scheduler counters
// this collector also needs.
func readProcStat(path string) (sample.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	row := sample.Row{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "cpu":
			if len(fields) < 10 {
				pgvlog.Warnf("system: short cpu line in /proc/stat: %q", line)
				continue
			}
			for i, name := range cpuFields {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("parse /proc/stat cpu field %s: %w", name, err)
				}
				row[name] = sample.NewNumber(v)
			}
		case "ctxt":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				row["ctxt"] = sample.NewNumber(v)
			}
		case "procs_running":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				row["procs_running"] = sample.NewNumber(v)
			}
		case "procs_blocked":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				row["procs_blocked"] = sample.NewNumber(v)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if _, ok := row["user"]; !ok {
		return nil, fmt.Errorf("cpu line not found in %s", path)
	}
	return row, nil
}
