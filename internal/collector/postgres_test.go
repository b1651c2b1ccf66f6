package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

func pidRow(pid int) sample.Row {
	return sample.Row{"pid": sample.NewNumber(float64(pid))}
}

func rowPID(r sample.Row) int {
	v, _ := r["pid"].Float64()
	return int(v)
}

// TestOrderByBlockerTreeDepthFirst checks the documented traversal order:
// running rows oldest-first, each immediately followed by the backends it
// blocks, youngest-victim-first.
func TestOrderByBlockerTreeDepthFirst(t *testing.T) {
	a := procRow{pid: 100, row: pidRow(100), age: 10 * time.Second}
	b := procRow{pid: 200, row: pidRow(200), age: 5 * time.Second}
	c := procRow{pid: 300, row: pidRow(300), lockedBy: 100, age: 3 * time.Second}
	d := procRow{pid: 400, row: pidRow(400), lockedBy: 100, age: 1 * time.Second}

	out := orderByBlockerTree([]procRow{b, d, a, c})

	var got []int
	for _, r := range out {
		got = append(got, rowPID(r))
	}
	assert.Equal(t, []int{100, 400, 300, 200}, got)
}

// TestOrderByBlockerTreeNoDuplicatePID ensures every row appears exactly
// once regardless of input order, including an orphaned blocked row whose
// blocker isn't present in this sample.
func TestOrderByBlockerTreeNoDuplicatePID(t *testing.T) {
	rows := []procRow{
		{pid: 1, row: pidRow(1), age: 2 * time.Second},
		{pid: 2, row: pidRow(2), lockedBy: 1, age: 1 * time.Second},
		{pid: 3, row: pidRow(3), lockedBy: 999, age: 1 * time.Second}, // orphan: blocker 999 absent
	}

	out := orderByBlockerTree(rows)
	assert.Len(t, out, 3)

	seen := map[int]bool{}
	for _, r := range out {
		pid := rowPID(r)
		assert.False(t, seen[pid], "pid %d appeared more than once", pid)
		seen[pid] = true
	}
	assert.True(t, seen[1] && seen[2] && seen[3])
}

func TestOrderByBlockerTreeEmpty(t *testing.T) {
	out := orderByBlockerTree(nil)
	assert.Empty(t, out)
}

// TestClassifyProcess covers §4.6's per-process classification: activity
// membership wins outright, then the "postgres: TYPE process ACTION"
// convention with autovacuum worker normalization, then the bare
// "postgres:" prefix fallback, then unknown.
func TestClassifyProcess(t *testing.T) {
	testcases := []struct {
		name       string
		cmdline    string
		isBackend  bool
		wantType   string
		wantAction string
	}{
		{name: "activity wins", cmdline: "postgres: checkpointer", isBackend: true, wantType: "backend"},
		{name: "checkpointer", cmdline: "postgres: checkpointer   process   ", wantType: "checkpointer", wantAction: ""},
		{name: "walwriter", cmdline: "postgres: walwriter process", wantType: "walwriter"},
		{name: "autovacuum worker normalized", cmdline: "postgres: autovacuum worker process   mydb", wantType: "autovacuum", wantAction: "mydb"},
		{name: "autovacuum launcher untouched", cmdline: "postgres: autovacuum launcher process", wantType: "autovacuum launcher"},
		{name: "bare postgres prefix", cmdline: "postgres: 12345", wantType: "backend"},
		{name: "unknown", cmdline: "/usr/bin/some-other-binary", wantType: "unknown"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			typ, action := classifyProcess(tc.cmdline, tc.isBackend)
			assert.Equal(t, tc.wantType, typ)
			assert.Equal(t, tc.wantAction, action)
		})
	}
}
