// Package discovery autodetects co-located Postgres postmasters via /proc
// and resolves a connectable endpoint for each one, the Go equivalent of
// original_source/pg_view/parsers.py's cluster detection and
// original_source/pg_view/models/clients.py's DBClient/reconnect closure.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	gopsproc "github.com/shirou/gopsutil/process"

	"github.com/lesovsky/pgview/internal/pgvlog"
	"github.com/lesovsky/pgview/internal/store"
)

// Cluster describes one detected, connected Postgres instance. Its
// Reconnect closure re-scans for the postmaster and re-dials on demand,
// matching clients.py's reconnect-on-OperationalError behavior.
type Cluster struct {
	Name          string
	WorkDir       string
	PostmasterPID int32
	VersionNum    int
	DB            *store.DB
	Reconnect     func() (*store.DB, int32, error)
}

// DiscoverClusters scans running processes for postmasters and, for each
// one found, resolves a connectable endpoint and opens a connection. A
// postmaster that can't be resolved or connected to is skipped with a
// warning rather than aborting discovery for the others.
func DiscoverClusters(ctx context.Context) ([]*Cluster, error) {
	postmasters, err := findPostmasters()
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	seen := map[int32]bool{}
	var clusters []*Cluster
	for _, pm := range postmasters {
		if seen[pm.pid] {
			continue // duplicate detection of the same cluster via a child process
		}
		seen[pm.pid] = true

		cl, err := connectCluster(ctx, pm)
		if err != nil {
			pgvlog.Warnf("discovery: cluster at pid %d (%s): %s", pm.pid, pm.workDir, err)
			continue
		}
		clusters = append(clusters, cl)
	}
	return clusters, nil
}

// postmaster is one candidate detected from /proc, before connection.
type postmaster struct {
	pid     int32
	workDir string
}

// findPostmasters scans all processes for ones named postgres/postmaster
// whose parent is not itself such a process (a backend, not the
// postmaster itself), using the process's current working directory as
// its data directory — the same heuristic parsers.py uses.
func findPostmasters() ([]postmaster, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, err
	}

	isPostmasterName := func(p *gopsproc.Process) bool {
		name, err := p.Name()
		if err != nil {
			return false
		}
		return name == "postgres" || name == "postmaster"
	}

	byPID := make(map[int32]*gopsproc.Process, len(procs))
	for _, p := range procs {
		byPID[p.Pid] = p
	}

	var out []postmaster
	for _, p := range procs {
		if !isPostmasterName(p) {
			continue
		}
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		if parent, ok := byPID[ppid]; ok && isPostmasterName(parent) {
			continue // this is a backend, not the postmaster
		}

		cwd, err := p.Cwd()
		if err != nil || cwd == "" {
			cwd = readWorkDirFromPostmasterPID(p.Pid)
		}
		if cwd == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(cwd, "PG_VERSION")); err != nil {
			continue // not actually a data directory
		}

		out = append(out, postmaster{pid: p.Pid, workDir: cwd})
	}
	return out, nil
}

// readWorkDirFromPostmasterPID is the fallback used when Cwd() is
// unavailable (e.g. permission denied on /proc/[pid]/cwd): it takes the
// data directory from the -D argument in /proc/[pid]/cmdline. It does not
// read the postmaster.pid file.
func readWorkDirFromPostmasterPID(pid int32) string {
	// Best-effort: scan common data directory roots isn't reliable, so
	// instead defer to /proc/[pid]/cmdline's -D argument when present.
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(int(pid)), "cmdline"))
	if err != nil {
		return ""
	}
	args := strings.Split(string(data), "\x00")
	for i, a := range args {
		if a == "-D" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "-D") && len(a) > 2 {
			return a[2:]
		}
	}
	return ""
}

// connectCluster resolves an endpoint for pm and opens a connection,
// reading server_version_num once connected (PG_VERSION is only checked
// for existence by findPostmasters, never read).
func connectCluster(ctx context.Context, pm postmaster) (*Cluster, error) {
	db, err := tryConnectEndpoints(ctx, pm.workDir)
	if err != nil {
		return nil, err
	}

	var versionNum int
	if err := db.QueryRowScalar(ctx, "SELECT setting::int FROM pg_settings WHERE name = 'server_version_num'", &versionNum); err != nil {
		db.Close()
		return nil, fmt.Errorf("read server_version_num: %w", err)
	}

	name := filepath.Base(pm.workDir)

	reconnect := func() (*store.DB, int32, error) {
		postmasters, err := findPostmasters()
		if err != nil {
			return nil, 0, err
		}
		for _, npm := range postmasters {
			if npm.workDir != pm.workDir {
				continue
			}
			ndb, err := tryConnectEndpoints(context.Background(), npm.workDir)
			if err != nil {
				return nil, 0, err
			}
			return ndb, npm.pid, nil
		}
		return nil, 0, fmt.Errorf("postmaster for %s no longer present", pm.workDir)
	}

	return &Cluster{
		Name:          name,
		WorkDir:       pm.workDir,
		PostmasterPID: pm.pid,
		VersionNum:    versionNum,
		DB:            db,
		Reconnect:     reconnect,
	}, nil
}

// tryConnectEndpoints attempts, in order, a Unix socket, then TCP (v4),
// then TCP (v6) endpoint resolved for workDir, matching the reference
// tool's unix->tcp->tcp6 precedence; the first endpoint that accepts a
// connection wins.
func tryConnectEndpoints(ctx context.Context, workDir string) (*store.DB, error) {
	endpoints, err := ResolveEndpoints(workDir)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no listening endpoint found for %s", workDir)
	}

	var lastErr error
	for _, ep := range endpoints {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		cfg, err := pgx.ParseConfig(ep.ConnString())
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		db, err := store.NewWithConfig(cctx, cfg)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("all endpoints failed, last error: %w", lastErr)
}
