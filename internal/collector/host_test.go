package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

func TestUptimeToStr(t *testing.T) {
	testcases := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "under a day", d: 2*time.Hour + 3*time.Minute + 4*time.Second, want: "02:03:04"},
		{name: "exactly one day", d: 24 * time.Hour, want: "1 days, 00:00:00"},
		{name: "multi-day", d: 50*time.Hour + 90*time.Second, want: "2 days, 02:01:30"},
		{name: "zero", d: 0, want: "00:00:00"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, uptimeToStr(tc.d))
		})
	}
}

// TestUptimeToStrMonotonic checks that as uptime grows tick by tick, the
// rendered string's implied total seconds never goes backwards, so a
// continuously-running host never appears to regress in the display.
func TestUptimeToStrMonotonic(t *testing.T) {
	var prevTotal int64 = -1
	for s := int64(0); s < 3*24*3600; s += 37 { // odd stride to cross day/hour/minute boundaries
		d := time.Duration(s) * time.Second
		total := parseUptimeSeconds(t, uptimeToStr(d))
		assert.GreaterOrEqual(t, total, prevTotal)
		prevTotal = total
	}
}

func parseUptimeSeconds(t *testing.T, s string) int64 {
	t.Helper()
	var days, h, m, sec int64
	if n, _ := fmt.Sscanf(s, "%d days, %d:%d:%d", &days, &h, &m, &sec); n == 4 {
		return days*86400 + h*3600 + m*60 + sec
	}
	if n, _ := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); n == 3 {
		return h*3600 + m*60 + sec
	}
	t.Fatalf("unparsable uptime string %q", s)
	return 0
}

func TestLoadStatusThresholds(t *testing.T) {
	testcases := []struct {
		name string
		load string
		want map[int]int
	}{
		{name: "idle", load: "0.10 0.05 0.01", want: map[int]int{0: 0, 1: 0, 2: 0}},
		{name: "warn", load: "6.00 1.00 1.00", want: map[int]int{0: 1, 1: 0, 2: 0}},
		{name: "crit", load: "25.00 10.00 5.00", want: map[int]int{0: 2, 1: 1, 2: 1}},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, loadStatus(sample.NewText(tc.load)))
		})
	}
}
