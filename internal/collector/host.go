package collector

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/load"

	"github.com/lesovsky/pgview/internal/sample"
)

// loadWarn/loadCrit are the default per-core-agnostic load average
// thresholds used to color the host panel, matching the reference tool's
// fixed thresholds rather than scaling by core count.
const (
	loadWarn = 5.0
	loadCrit = 20.0
)

// HostCollector samples static/slow-changing host identity: hostname, OS,
// uptime, core count and load average. It never diffs — there is nothing
// to rate-compute, it simply refreshes the single row.
type HostCollector struct {
	BaseCollector
}

// NewHostCollector builds a collector that refreshes once every
// ticksPerRefresh ticks (host identity rarely changes tick to tick).
func NewHostCollector(ticksPerRefresh int) *HostCollector {
	cols := []OutputColumn{
		{Name: "host", Header: "HOST", Width: 24, Align: AlignLeft},
		{Name: "name", Header: "NAME", Width: 24, Align: AlignLeft},
		{Name: "cores", Header: "CORES", Width: 5, Align: AlignRight},
		{Name: "loadavg", Header: "LOAD AVERAGE", Width: 20, Align: AlignLeft, StatusFn: loadStatus},
		{Name: "up", Header: "UP", Width: 20, Align: AlignLeft},
	}
	return &HostCollector{BaseCollector: NewBaseCollector("host", ticksPerRefresh, false, nil, cols)}
}

// loadStatus classifies each of the three whitespace-separated load-average
// tokens independently, returning a per-word status map so the terminal
// displayer colors each figure on its own merits instead of the whole cell
// by the 1-minute number alone.
func loadStatus(v sample.Value) map[int]int {
	fields := strings.Fields(v.String())
	out := make(map[int]int, len(fields))
	for i, f := range fields {
		var l float64
		if _, err := fmt.Sscanf(f, "%f", &l); err != nil {
			out[i] = 0
			continue
		}
		switch {
		case l >= loadCrit:
			out[i] = 2
		case l >= loadWarn:
			out[i] = 1
		default:
			out[i] = 0
		}
	}
	return out
}

func (c *HostCollector) Refresh() error {
	info, err := host.Info()
	if err != nil {
		return fmt.Errorf("host: read host info: %w", err)
	}

	avg, err := load.Avg()
	if err != nil {
		return fmt.Errorf("host: read load average: %w", err)
	}

	cores, err := cpu.Counts(true)
	if err != nil {
		return fmt.Errorf("host: count cpus: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = info.Hostname
	}

	row := sample.Row{
		"host":    sample.NewText(hostname),
		"name":    sample.NewText(fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)),
		"cores":   sample.NewNumber(float64(cores)),
		"loadavg": sample.NewText(fmt.Sprintf("%.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15)),
		"up":      sample.NewText(uptimeToStr(time.Duration(info.Uptime) * time.Second)),
	}

	c.setCurrent([]sample.Row{row}, time.Now())
	return nil
}

// uptimeToStr renders a duration as "N days, HH:MM:SS", or as plain
// "HH:MM:SS" when it is under one day, matching host_collector.py's
// _uptime_to_str.
func uptimeToStr(d time.Duration) string {
	days := int(d.Hours()) / 24
	rem := d - time.Duration(days)*24*time.Hour
	h := int(rem.Hours())
	m := int(rem.Minutes()) % 60
	s := int(rem.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%d days, %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (c *HostCollector) Diff() {}
