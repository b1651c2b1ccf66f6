package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

// TestSystemCollectorCPUSharesSumToHundred verifies the Σdelta convention:
// every bucket's share is Δfield/Σ(all Δfields), which by construction sums
// to ~100 regardless of how many cores or how busy the system is.
func TestSystemCollectorCPUSharesSumToHundred(t *testing.T) {
	c := NewSystemCollector(1)
	now := time.Now()

	c.setCurrent([]sample.Row{cpuRow(1000, 0, 200, 8000, 50, 5, 5, 0, 0, 100, 3, 0)}, now)
	c.Diff()

	c.setCurrent([]sample.Row{cpuRow(1100, 10, 250, 8300, 60, 8, 9, 2, 1, 110, 3, 1)}, now.Add(time.Second))
	c.Diff()

	var sum float64
	for _, f := range cpuFields {
		v, ok := c.rowsDiff[0][f].Float64()
		assert.True(t, ok)
		sum += v
	}
	assert.InDelta(t, 100.0, sum, 0.01)
}

func cpuRow(user, nice, system, idle, iowait, irq, softirq, steal, guest, ctxt, running, blocked float64) sample.Row {
	return sample.Row{
		"user": sample.NewNumber(user), "nice": sample.NewNumber(nice),
		"system": sample.NewNumber(system), "idle": sample.NewNumber(idle),
		"iowait": sample.NewNumber(iowait), "irq": sample.NewNumber(irq),
		"softirq": sample.NewNumber(softirq), "steal": sample.NewNumber(steal),
		"guest": sample.NewNumber(guest),
		"ctxt": sample.NewNumber(ctxt), "procs_running": sample.NewNumber(running),
		"procs_blocked": sample.NewNumber(blocked),
	}
}
