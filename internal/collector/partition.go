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

// diskstatFields is the subset of /proc/diskstats columns this collector
// tracks, by zero-based field index after the 3 fixed leading fields
// (major, minor, device name). Kernels before 4.18 expose 11 fields after
// the name; 4.18+ adds 4 more (discard stats). We only read the first 11,
// matching the original collector's conservative field count.
var diskstatFields = []string{
	"reads_completed", "reads_merged", "sectors_read", "ms_reading",
	"writes_completed", "writes_merged", "sectors_written", "ms_writing",
	"ios_in_progress", "ms_doing_io", "weighted_ms_doing_io",
}

// PartitionCollector joins the detached DiskSampler's du/df measurements
// with live /proc/diskstats I/O counters, keyed by watched directory.
type PartitionCollector struct {
	BaseCollector

	sampler   *DiskSampler
	dirsFn    func() []WatchedDir
	lastUsage map[string]DirUsage // keyed by Cluster+Label
}

func NewPartitionCollector(ticksPerRefresh int, sampler *DiskSampler, dirsFn func() []WatchedDir) *PartitionCollector {
	diffCols := []DiffColumn{
		{Name: "reads_completed", Diff: true},
		{Name: "writes_completed", Diff: true},
		{Name: "sectors_read", Diff: true},
		{Name: "sectors_written", Diff: true},
		{Name: "ms_doing_io", Diff: true},
	}
	outCols := []OutputColumn{
		{Name: "path", Header: "PATH", Width: 20, Align: AlignLeft, NoAutohide: true},
		{Name: "device", Header: "DEVICE", Width: 10, Align: AlignLeft},
		{Name: "used_pct", Header: "USED%", Width: 6, Align: AlignRight, StatusFn: usedPctStatus},
		{Name: "time_until_full", Header: "FULL IN", Width: 10, Align: AlignRight},
		{Name: "reads_completed", Header: "READS/S", Width: 9, Align: AlignRight},
		{Name: "writes_completed", Header: "WRITES/S", Width: 9, Align: AlignRight},
		{Name: "sectors_read", Header: "RSECT/S", Width: 9, Align: AlignRight},
		{Name: "sectors_written", Header: "WSECT/S", Width: 9, Align: AlignRight},
		{Name: "await", Header: "AWAIT", Width: 7, Align: AlignRight, StatusFn: awaitStatus},
	}
	return &PartitionCollector{
		BaseCollector: NewBaseCollector("partition", ticksPerRefresh, true, diffCols, outCols),
		sampler:       sampler,
		dirsFn:        dirsFn,
		lastUsage:     map[string]DirUsage{},
	}
}

func usedPctStatus(v sample.Value) map[int]int {
	n, _ := v.Float64()
	switch {
	case n >= 95:
		return wholeCellStatus(2)
	case n >= 85:
		return wholeCellStatus(1)
	default:
		return wholeCellStatus(0)
	}
}

func awaitStatus(v sample.Value) map[int]int {
	n, _ := v.Float64()
	switch {
	case n >= 50:
		return wholeCellStatus(2)
	case n >= 10:
		return wholeCellStatus(1)
	default:
		return wholeCellStatus(0)
	}
}

// drainSampler non-blockingly takes the latest DiskResult if one is
// waiting, acknowledging it so the sampler can proceed with its next pass.
func (c *PartitionCollector) drainSampler() {
	select {
	case res := <-c.sampler.Results():
		for _, u := range res.Usage {
			c.lastUsage[u.Cluster+"/"+u.Label] = u
		}
		c.sampler.Ack()
	default:
	}
}

func (c *PartitionCollector) Refresh() error {
	c.drainSampler()

	stats, err := readDiskstats("/proc/diskstats")
	if err != nil {
		return fmt.Errorf("partition: %w", err)
	}

	dirs := c.dirsFn()
	rows := make([]sample.Row, 0, len(dirs))
	for _, d := range dirs {
		usage, haveUsage := c.lastUsage[d.Cluster+"/"+d.Label]
		dev := deviceForPath(d.Path)
		row := sample.Row{
			"path":   sample.NewText(d.Path),
			"device": sample.NewText(dev),
		}
		if haveUsage && usage.Err == nil && usage.TotalBytes > 0 {
			usedPct := 100 * float64(usage.TotalBytes-usage.FreeBytes) / float64(usage.TotalBytes)
			row["used_pct"] = sample.NewNumber(usedPct)
			row["size_bytes"] = sample.NewNumber(float64(usage.SizeBytes))
			row["free_bytes"] = sample.NewNumber(float64(usage.FreeBytes))
		}
		if io, ok := stats[dev]; ok {
			for k, v := range io {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}

	c.setCurrent(rows, time.Now())
	return nil
}

func (c *PartitionCollector) Diff() {
	c.BaseCollector.Diff(func(r sample.Row) string { return r["path"].String() })

	dt := c.lastRefresh.Sub(c.prevRefresh).Seconds()
	if dt <= 0 {
		dt = 1
	}

	for i, row := range c.rowsDiff {
		if reads, ok := row["reads_completed"].Float64(); ok {
			if writes, ok2 := row["writes_completed"].Float64(); ok2 {
				if ms, ok3 := row["ms_doing_io"].Float64(); ok3 {
					ops := reads + writes
					if ops > 0 {
						row["await"] = sample.NewNumber(ms / ops)
					} else {
						row["await"] = sample.NewNumber(0)
					}
				}
			}
		}

		// time_until_full is only meaningful while free space is actually
		// shrinking; the reference tool (partition_collector.py) leaves it
		// undefined otherwise, and this port preserves that quirk rather
		// than inventing a "growing" projection.
		prevFree, haveFree := row["free_bytes"].Float64()
		if haveFree {
			if prevIdx := findRowByPath(c.rowsPrev, row["path"].String()); prevIdx >= 0 {
				if prevFreeVal, ok := c.rowsPrev[prevIdx]["free_bytes"].Float64(); ok {
					shrinkRate := (prevFreeVal - prevFree) / dt
					if shrinkRate > 0 {
						secondsLeft := prevFree / shrinkRate
						row["time_until_full"] = sample.NewText(time.Duration(secondsLeft * float64(time.Second)).String())
					}
				}
			}
		}

		c.rowsDiff[i] = row
	}
}

func findRowByPath(rows []sample.Row, path string) int {
	for i, r := range rows {
		if r["path"].String() == path {
			return i
		}
	}
	return -1
}

// deviceForPath resolves the block device backing a path by scanning
// /proc/mounts for the longest matching mount point prefix.
func deviceForPath(path string) string {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	best := ""
	bestDev := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		mnt := fields[1]
		if strings.HasPrefix(path, mnt) && len(mnt) > len(best) {
			best = mnt
			bestDev = strings.TrimPrefix(fields[0], "/dev/")
		}
	}
	return bestDev
}

// readDiskstats parses /proc/diskstats into per-device raw counters.
func readDiskstats(path string) (map[string]sample.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := map[string]sample.Row{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3+len(diskstatFields) {
			continue
		}
		dev := fields[2]
		row := sample.Row{}
		for i, name := range diskstatFields {
			v, err := strconv.ParseFloat(fields[3+i], 64)
			if err != nil {
				continue
			}
			row[name] = sample.NewNumber(v)
		}
		out[dev] = row
	}
	return out, sc.Err()
}
