package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/process"

	"github.com/lesovsky/pgview/internal/pgvlog"
	"github.com/lesovsky/pgview/internal/sample"
	"github.com/lesovsky/pgview/internal/store"
)

// PostgresCollector joins kernel process stats for one cluster's backends
// with a pg_stat_activity/pg_locks snapshot, classifies each backend, and
// orders rows so a blocked backend always appears directly beneath the
// transaction blocking it (depth-first, blockers before their victims).
type PostgresCollector struct {
	BaseCollector

	clusterName   string
	postmasterPID int32
	db            *store.DB
	versionNum    int
	reconnect     func() (*store.DB, int32, error)
	// alwaysTrack is the user-specified (-P, repeatable) set of PIDs that
	// stay visible and memory-sampled even while idle, feeding both the
	// "active" condition and the idle-skip filter in §4.6's central
	// algorithm.
	alwaysTrack map[int]bool
}

func NewPostgresCollector(ticksPerRefresh int, clusterName string, postmasterPID int32, db *store.DB, versionNum int, alwaysTrack map[int]bool, reconnect func() (*store.DB, int32, error)) *PostgresCollector {
	diffCols := []DiffColumn{
		{Name: "cpu_time", Diff: true},
		{Name: "read_bytes", Diff: true},
		{Name: "write_bytes", Diff: true},
		{Name: "pid", Diff: false},
		{Name: "user", Diff: false},
		{Name: "database", Diff: false},
		{Name: "state", Diff: false},
		{Name: "query", Diff: false},
		{Name: "locked_by", Diff: false},
		{Name: "age", Diff: false},
		{Name: "uss", Diff: false},
	}
	outCols := []OutputColumn{
		{Name: "pid", Header: "PID", Width: 7, Align: AlignRight},
		{Name: "user", Header: "USER", Width: 12, Align: AlignLeft},
		{Name: "database", Header: "DATABASE", Width: 12, Align: AlignLeft},
		{Name: "state", Header: "STATE", Width: 8, Align: AlignLeft, StatusFn: stateStatus},
		{Name: "cpu_time", Header: "%CPU", Width: 6, Align: AlignRight},
		{Name: "uss", Header: "MEM", Width: 8, Align: AlignRight},
		{Name: "read_bytes", Header: "READ/S", Width: 9, Align: AlignRight},
		{Name: "write_bytes", Header: "WRITE/S", Width: 9, Align: AlignRight},
		{Name: "age", Header: "AGE", Width: 10, Align: AlignRight},
		{Name: "locked_by", Header: "WAITING", Width: 8, Align: AlignRight, StatusFn: lockedStatus, HideIfOK: true},
		{Name: "query", Header: "QUERY", Width: 40, MaxWidth: 200, Align: AlignLeft},
	}

	if alwaysTrack == nil {
		alwaysTrack = map[int]bool{}
	}

	return &PostgresCollector{
		BaseCollector: NewBaseCollector("postgres:"+clusterName, ticksPerRefresh, true, diffCols, outCols),
		clusterName:   clusterName,
		postmasterPID: postmasterPID,
		db:            db,
		versionNum:    versionNum,
		alwaysTrack:   alwaysTrack,
		reconnect:     reconnect,
	}
}

func stateStatus(v sample.Value) map[int]int {
	switch v.String() {
	case "active":
		return wholeCellStatus(0)
	case "idle in transaction":
		return wholeCellStatus(1)
	case "idle in transaction (aborted)":
		return wholeCellStatus(2)
	default:
		return wholeCellStatus(0)
	}
}

func lockedStatus(v sample.Value) map[int]int {
	if v.IsAbsent() || v.String() == "" {
		return wholeCellStatus(0)
	}
	return wholeCellStatus(2)
}

func (c *PostgresCollector) Diff() {
	c.BaseCollector.Diff(func(r sample.Row) string { return r["pid"].String() })
}

// activityRow is the parsed, version-normalized shape of one
// pg_stat_activity/pg_locks join result, regardless of which of the three
// opaque query variants produced it.
type activityRow struct {
	pid       int
	user      string
	database  string
	state     string
	query     string
	lockedBy  int
	queryAge  time.Duration
}

func (c *PostgresCollector) Refresh() error {
	if err := c.ensureConnection(); err != nil {
		// Mirror the reference tool: a dead connection degrades to an
		// empty sample rather than aborting the whole collector, and a
		// reconnect is retried on the next tick.
		pgvlog.Warnf("postgres[%s]: %s", c.clusterName, err)
		c.setCurrent(nil, time.Now())
		return nil
	}

	activity, err := c.queryActivity()
	if err != nil {
		pgvlog.Warnf("postgres[%s]: query activity failed: %s", c.clusterName, err)
		c.db = nil
		c.setCurrent(nil, time.Now())
		return nil
	}

	procs, err := c.collectProcesses(activity)
	if err != nil {
		return fmt.Errorf("postgres[%s]: %w", c.clusterName, err)
	}

	ordered := orderByBlockerTree(procs)
	c.setCurrent(ordered, time.Now())
	return nil
}

func (c *PostgresCollector) ensureConnection() error {
	if c.db != nil {
		return nil
	}
	db, pid, err := c.reconnect()
	if err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}
	c.db = db
	c.postmasterPID = pid
	return nil
}

func (c *PostgresCollector) queryActivity() ([]activityRow, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.db.Query(ctx, activityQueryForVersion(c.versionNum))
	if err != nil {
		return nil, err
	}

	rows := make([]activityRow, 0, len(res.Rows))
	for i := range res.Rows {
		r := res.Row(i)
		pid, _ := strconv.Atoi(r["pid"])
		lockedBy, _ := strconv.Atoi(r["locked_by"])

		age := time.Duration(0)
		if qs := r["query_start"]; qs != "" {
			if t, err := time.Parse(time.RFC3339Nano, qs); err == nil {
				age = time.Since(t)
			}
		}

		state := activityState(r)
		query := r["query"]
		if state == "idle" {
			// The idle-skip filter and the USS "active" check key on the
			// query field, so an idle backend's query reads "idle".
			query = "idle"
		}

		rows = append(rows, activityRow{
			pid:      pid,
			user:     r["usename"],
			database: r["datname"],
			state:    state,
			query:    query,
			lockedBy: lockedBy,
			queryAge: age,
		})
	}
	return rows, nil
}

// activityState normalizes the "is this backend doing something" signal
// across query variants: pre-9.2 has no state column at all, so an empty
// current_query implies idle.
func activityState(r map[string]string) string {
	if s, ok := r["state"]; ok && s != "" {
		return s
	}
	if r["query"] == "" {
		return "idle"
	}
	return "active"
}

// procRow is one fully joined row: kernel stats + activity classification,
// keyed by pid, ready for blocker-tree ordering.
type procRow struct {
	pid      int
	row      sample.Row
	lockedBy int
	age      time.Duration
}

// auxProcessRe recognizes the "postgres: <type> process <action>" command
// line pattern the postmaster gives its non-backend children (checkpointer,
// walwriter, background workers, autovacuum launcher/workers, ...).
var auxProcessRe = regexp.MustCompile(`postgres:\s+(.+?)\s+process\s*(.*)$`)

// classifyProcess implements §4.6's per-process classification: a PID
// present in pg_stat_activity is always a backend; otherwise the command
// line is parsed for the postmaster's "postgres: TYPE process ACTION"
// convention, normalizing "autovacuum worker" to "autovacuum"; failing
// that, anything still prefixed "postgres:" is treated as a backend, and
// everything else is unknown.
func classifyProcess(cmdline string, isBackend bool) (typ, action string) {
	if isBackend {
		return "backend", ""
	}
	if m := auxProcessRe.FindStringSubmatch(cmdline); m != nil {
		t := m[1]
		if t == "autovacuum worker" {
			t = "autovacuum"
		}
		return t, m[2]
	}
	if strings.HasPrefix(cmdline, "postgres:") {
		return "backend", ""
	}
	return "unknown", ""
}

// childPIDs lists the postmaster's child PIDs (input source #1 of §4.6):
// every backend and auxiliary process alike. Falls back to the PIDs seen
// in the activity snapshot when the postmaster PID isn't known yet (e.g. a
// direct --host connection that bypassed autodiscovery).
func (c *PostgresCollector) childPIDs(byPID map[int]activityRow) ([]int, error) {
	if c.postmasterPID <= 0 {
		pids := make([]int, 0, len(byPID))
		for pid := range byPID {
			pids = append(pids, pid)
		}
		return pids, nil
	}

	pm, err := gopsproc.NewProcess(c.postmasterPID)
	if err != nil {
		return nil, fmt.Errorf("open postmaster pid %d: %w", c.postmasterPID, err)
	}
	children, err := pm.Children()
	if err != nil {
		return nil, fmt.Errorf("list postmaster %d children: %w", c.postmasterPID, err)
	}
	pids := make([]int, 0, len(children))
	for _, ch := range children {
		pids = append(pids, int(ch.Pid))
	}
	return pids, nil
}

func (c *PostgresCollector) collectProcesses(activity []activityRow) ([]procRow, error) {
	byPID := make(map[int]activityRow, len(activity))
	for _, a := range activity {
		byPID[a.pid] = a
	}

	pids, err := c.childPIDs(byPID)
	if err != nil {
		return nil, err
	}

	out := make([]procRow, 0, len(pids))
	for _, pid := range pids {
		a, isBackend := byPID[pid]

		p, err := gopsproc.NewProcess(int32(pid))
		if err != nil {
			continue // process exited between enumeration and inspection
		}

		cmdline, _ := p.Cmdline()
		typ, _ := classifyProcess(cmdline, isBackend)

		var query, state string
		var age time.Duration
		var lockedBy int
		if isBackend {
			query = a.query
			state = a.state
			age = a.queryAge
			lockedBy = a.lockedBy
		}

		// Central algorithm's idle-skip filter: a backend sitting idle
		// and not in the always-track set never makes it into the
		// sample at all, so it never occupies a diff row or blocker-tree
		// slot. Auxiliary processes have no query, so this never fires
		// for them.
		if query == "idle" && !c.alwaysTrack[pid] {
			continue
		}

		extra, err := readProcStatExtra(pid)
		if err != nil {
			pgvlog.Warnf("postgres[%s]: read /proc/%d/stat: %s", c.clusterName, pid, err)
		}
		if state == "" {
			state = extra.state
		}

		row := sample.Row{
			"pid":         sample.NewNumber(float64(pid)),
			"user":        sample.NewText(a.user),
			"database":    sample.NewText(a.database),
			"state":       sample.NewText(state),
			"query":       sample.NewText(query),
			"type":        sample.NewText(typ),
			"age":         sample.NewText(age.Round(time.Second).String()),
			"priority":    sample.NewNumber(float64(extra.priority)),
			"starttime":   sample.NewNumber(float64(extra.starttime)),
			"cpu_time":    sample.NewNumber(extra.utime + extra.stime),
			"blkio_ticks": sample.NewNumber(float64(extra.delayacctBlkioTicks)),
			"guest_time":  sample.NewNumber(float64(extra.guestTime)),
		}
		if lockedBy != 0 {
			row["locked_by"] = sample.NewNumber(float64(lockedBy))
		} else {
			row["locked_by"] = sample.NewAbsent()
		}

		// USS is computed for every non-backend and for active backends
		// only; idle backends intentionally skip it to limit overhead —
		// they're numerous and their memory footprint churns less.
		active := !isBackend || query != "idle" || c.alwaysTrack[pid]
		if active {
			if mi, err := p.MemoryInfo(); err == nil {
				row["uss"] = sample.NewNumber(float64(mi.RSS - mi.Shared))
			}
			if io, err := p.IOCounters(); err == nil {
				row["read_bytes"] = sample.NewNumber(float64(io.ReadBytes))
				row["write_bytes"] = sample.NewNumber(float64(io.WriteBytes))
			}
		} else {
			row["uss"] = sample.NewAbsent()
		}

		out = append(out, procRow{pid: pid, row: row, lockedBy: lockedBy, age: age})
	}
	return out, nil
}

// procStatExtra holds the /proc/[pid]/stat fields gopsutil doesn't expose:
// scheduling priority, start time (as an opaque clock-tick count, never
// converted to wall time), accumulated block-io delay, and guest time.
type procStatExtra struct {
	state                 string
	priority              int
	starttime             int64
	delayacctBlkioTicks   int64
	guestTime             int64
	utime, stime          float64
}

// readProcStatExtra parses /proc/[pid]/stat by field index. Field 2 (comm)
// is parenthesized and may itself contain spaces, so it's located by the
// last ')' rather than by naive whitespace splitting, matching the
// reference parser's approach in parsers.py.
func readProcStatExtra(pid int) (procStatExtra, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStatExtra{}, err
	}
	line := string(data)

	closeIdx := strings.LastIndexByte(line, ')')
	if closeIdx < 0 {
		return procStatExtra{}, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	rest := strings.Fields(line[closeIdx+2:])

	// rest[0] is field 3 (state) in the full record; fields below are
	// numbered relative to rest, 0-based, i.e. fieldN = rest[N-3].
	field := func(n int) string {
		idx := n - 3
		if idx < 0 || idx >= len(rest) {
			return "0"
		}
		return rest[idx]
	}

	atoi := func(s string) int64 {
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	}

	utime := atoi(field(14))
	stime := atoi(field(15))
	guestTime := atoi(field(43))

	return procStatExtra{
		state:               field(3),
		priority:            int(atoi(field(18))),
		starttime:           atoi(field(22)),
		delayacctBlkioTicks: atoi(field(42)),
		guestTime:           guestTime,
		utime:               float64(utime),
		stime:               float64(stime),
	}, nil
}

// orderByBlockerTree arranges rows so that any row blocking others is
// immediately followed by its victims, recursively, depth-first: running
// (unblocked) rows first, ordered oldest-first, each followed immediately
// by the backends it blocks (ordered youngest-first), each of which may in
// turn block further backends. Implemented with an explicit stack rather
// than recursion, matching pg_collector.py's iterative approach; each
// blocker's victim list is consumed (removed from the map) the moment it's
// visited, so a pid can never appear twice even in a cyclic/odd snapshot.
func orderByBlockerTree(rows []procRow) []sample.Row {
	blocked := make(map[int][]procRow)
	var running []procRow

	for _, r := range rows {
		if r.lockedBy == 0 {
			running = append(running, r)
		} else {
			blocked[r.lockedBy] = append(blocked[r.lockedBy], r)
		}
	}

	sort.Slice(running, func(i, j int) bool { return running[i].age > running[j].age })
	for pid := range blocked {
		b := blocked[pid]
		sort.Slice(b, func(i, j int) bool { return b[i].age < b[j].age })
		blocked[pid] = b
	}

	var out []sample.Row
	stack := make([]procRow, len(running))
	copy(stack, running)
	// reverse so the oldest running row pops first (stack is LIFO)
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, top.row)

		victims, ok := blocked[top.pid]
		if !ok {
			continue
		}
		delete(blocked, top.pid)

		// push in reverse so the youngest victim pops first, appearing
		// directly under its blocker
		for i, j := 0, len(victims)-1; i < j; i, j = i+1, j-1 {
			victims[i], victims[j] = victims[j], victims[i]
		}
		stack = append(stack, victims...)
	}

	// Any leftover blocked rows reference a blocker pid that wasn't in this
	// sample (blocker already gone, or a snapshot race) — append them at
	// the end rather than dropping them.
	for _, victims := range blocked {
		for _, v := range victims {
			out = append(out, v.row)
		}
	}

	return out
}
