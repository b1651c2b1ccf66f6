package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

func diskRow(path string, freeBytes float64) sample.Row {
	return sample.Row{
		"path":             sample.NewText(path),
		"free_bytes":       sample.NewNumber(freeBytes),
		"reads_completed":  sample.NewNumber(0),
		"writes_completed": sample.NewNumber(0),
		"ms_doing_io":      sample.NewNumber(0),
	}
}

// TestPartitionTimeUntilFullOnlyWhileShrinking preserves the reference
// tool's quirk: time_until_full is only populated while free space is
// actually shrinking between samples, never while it's flat or growing.
func TestPartitionTimeUntilFullOnlyWhileShrinking(t *testing.T) {
	c := NewPartitionCollector(1, NewDiskSampler(time.Second), func() []WatchedDir { return nil })
	now := time.Now()

	c.setCurrent([]sample.Row{diskRow("/data", 1000)}, now)
	c.Diff()
	assert.True(t, c.rowsDiff[0]["time_until_full"].IsAbsent(), "no previous sample: must not fabricate a projection")

	c.setCurrent([]sample.Row{diskRow("/data", 800)}, now.Add(time.Second))
	c.Diff()
	assert.False(t, c.rowsDiff[0]["time_until_full"].IsAbsent(), "shrinking free space must produce a projection")

	c.setCurrent([]sample.Row{diskRow("/data", 900)}, now.Add(2*time.Second))
	c.Diff()
	assert.True(t, c.rowsDiff[0]["time_until_full"].IsAbsent(), "growing free space must not produce a projection")

	c.setCurrent([]sample.Row{diskRow("/data", 900)}, now.Add(3*time.Second))
	c.Diff()
	assert.True(t, c.rowsDiff[0]["time_until_full"].IsAbsent(), "flat free space must not produce a projection")
}
