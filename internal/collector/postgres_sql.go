package collector

// Activity query texts are intentionally opaque: this program treats them
// as version-routed constants to execute, the way the reference tool's
// sqls.py does, rather than as something whose exact SQL shape is part of
// this codebase's contract with the world.
const (
	activityQueryPre92 = `-- activity query, server_version_num < 90200
SELECT procpid AS pid, usename, datname, client_addr, waiting AS locked,
       current_query AS query, query_start, xact_start
FROM pg_stat_activity`

	activityQuery92to96 = `-- activity query, 90200 <= server_version_num < 90600
SELECT pid, usename, datname, client_addr, waiting AS locked,
       query, query_start, xact_start, state
FROM pg_stat_activity`

	activityQuery96Plus = `-- activity query, server_version_num >= 90600
SELECT a.pid, a.usename, a.datname, a.client_addr,
       (l.pid IS NOT NULL) AS locked, l.pid AS locked_by,
       a.query, a.query_start, a.xact_start, a.state, a.wait_event_type
FROM pg_stat_activity a
LEFT JOIN LATERAL (
    SELECT unnest(pg_blocking_pids(a.pid)) AS pid
) l ON true`

	recoveryStatusQuery = `SELECT pg_is_in_recovery()`

	connectionCountsQuery = `SELECT count(*) AS total,
       count(*) FILTER (WHERE state = 'active') AS active
FROM pg_stat_activity`
)

// activityQueryForVersion routes to the right opaque query text for a
// server_version_num, matching the three generations of pg_stat_activity
// shape (pre-9.2 procpid/current_query, 9.2-9.5 pid/query/state, 9.6+ adds
// wait_event_type and direct blocker-pid visibility).
func activityQueryForVersion(versionNum int) string {
	switch {
	case versionNum < 90200:
		return activityQueryPre92
	case versionNum < 90600:
		return activityQuery92to96
	default:
		return activityQuery96Plus
	}
}
