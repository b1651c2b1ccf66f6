package collector

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lesovsky/pgview/internal/sample"
)

// memFields are the /proc/meminfo keys surfaced directly; MemUsed and
// SwapUsed are derived (not present in the source file).
var memFields = []string{
	"MemTotal", "MemFree", "Buffers", "Cached",
	"SwapTotal", "SwapFree",
	"Dirty", "CommitLimit", "Committed_AS",
}

// MemoryCollector samples /proc/meminfo. No diffs are produced — memory
// totals are absolute quantities, not rates.
type MemoryCollector struct {
	BaseCollector
}

func NewMemoryCollector(ticksPerRefresh int) *MemoryCollector {
	cols := []OutputColumn{
		{Name: "MemUsed", Header: "USED", Width: 10, Align: AlignRight},
		{Name: "MemFree", Header: "FREE", Width: 10, Align: AlignRight},
		{Name: "Buffers", Header: "BUFFERS", Width: 10, Align: AlignRight},
		{Name: "Cached", Header: "CACHED", Width: 10, Align: AlignRight},
		{Name: "Dirty", Header: "DIRTY", Width: 10, Align: AlignRight, StatusFn: dirtyStatus},
		{Name: "SwapUsed", Header: "SWAP", Width: 10, Align: AlignRight, StatusFn: swapStatus},
		{Name: "CommitLimit", Header: "CMT LIMIT", Width: 10, Align: AlignRight},
		{Name: "Committed_AS", Header: "CMT AS", Width: 10, Align: AlignRight, StatusFn: commitStatus},
	}
	return &MemoryCollector{BaseCollector: NewBaseCollector("memory", ticksPerRefresh, false, nil, cols)}
}

func (c *MemoryCollector) Diff() {}

func dirtyStatus(v sample.Value) map[int]int {
	n, _ := v.Float64()
	switch {
	case n > 512*1024*1024:
		return wholeCellStatus(2)
	case n > 64*1024*1024:
		return wholeCellStatus(1)
	default:
		return wholeCellStatus(0)
	}
}

func swapStatus(v sample.Value) map[int]int {
	n, _ := v.Float64()
	if n > 0 {
		return wholeCellStatus(1)
	}
	return wholeCellStatus(0)
}

func commitStatus(v sample.Value) map[int]int { return wholeCellStatus(0) }

func (c *MemoryCollector) Refresh() error {
	stats, err := parseMeminfo("/proc/meminfo")
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	row := sample.Row{}
	for _, f := range memFields {
		row[f] = sample.NewNumber(stats[f])
	}
	row["MemUsed"] = sample.NewNumber(stats["MemTotal"] - stats["MemFree"] - stats["Buffers"] - stats["Cached"])
	row["SwapUsed"] = sample.NewNumber(stats["SwapTotal"] - stats["SwapFree"])

	c.setCurrent([]sample.Row{row}, time.Now())
	return nil
}

// parseMeminfo reads /proc/meminfo into a flat map, applying the kB->bytes
// multiplier where the source line carries a "kB" unit suffix — the same
// scanning idiom the teacher's /proc/meminfo parser uses (read for
// grounding before its containing package was removed), extended with the
// mB/gB cases original_source/pg_view/collectors/memory_collector.py also
// handles.
func parseMeminfo(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stats := map[string]float64{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimRight(parts[0], ":")
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		if len(parts) == 3 {
			switch strings.ToLower(parts[2]) {
			case "kb":
				v *= 1024
			case "mb":
				v *= 1024 * 1024
			case "gb":
				v *= 1024 * 1024 * 1024
			}
		}
		stats[name] = v
	}
	return stats, sc.Err()
}
