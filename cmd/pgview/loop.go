package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/lesovsky/pgview/internal/collector"
	"github.com/lesovsky/pgview/internal/discovery"
	"github.com/lesovsky/pgview/internal/display"
	"github.com/lesovsky/pgview/internal/pgvlog"
	"github.com/lesovsky/pgview/internal/sample"
	"github.com/lesovsky/pgview/internal/store"
	"github.com/lesovsky/pgview/internal/terminal"
	"github.com/lesovsky/pgview/internal/uiflags"
)

// diskSampleInterval is how often the detached disk sampler resamples
// directory sizes and free space; deliberately slower than the display
// tick rate since du/statfs on a busy filesystem can take a while.
const diskSampleInterval = 5 * time.Second

// defaultTicksPerRefresh governs how often each collector actually
// resamples relative to the main loop's tick (spec §4.9's "call refresh
// when due"); this isn't part of the external command-line surface, only
// the tick length itself (-t) is.
const defaultTicksPerRefresh = 1

// run wires discovery, builds one collector set per cluster plus the
// shared host/system/memory/partition collectors, and drives the main
// sampling/display loop until ctx is canceled or the user quits.
func run(ctx context.Context, opts runOptions) error {
	clusters, err := resolveClusters(ctx, opts)
	if err != nil {
		return fmt.Errorf("resolve clusters: %w", err)
	}
	if len(clusters) == 0 {
		return fmt.Errorf("no Postgres clusters found")
	}

	sampler := collector.NewDiskSampler(diskSampleInterval)
	go sampler.Run(ctx, func() []collector.WatchedDir {
		return watchedDirsFor(clusters)
	})

	collectors := buildCollectors(opts, clusters, sampler)

	disp, term, err := buildDisplayer(opts.output)
	if err != nil {
		return err
	}
	if term != nil {
		defer func() { _ = term.Restore() }()
	}

	flags := uiflags.New()
	tick := opts.tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		for _, c := range collectors {
			c.Tick()
			if flags.Paused || !c.NeedsRefresh() {
				continue
			}
			if err := c.Refresh(); err != nil {
				pgvlog.Warnf("%s: refresh failed: %s", c.Ident(), err)
				continue
			}
			c.Diff()
		}

		if term != nil {
			handleKeys(term, flags)
			if flags.Quit {
				return nil
			}
			if td, ok := disp.(*display.TerminalDisplayer); ok {
				if cols, rows, err := term.Size(); err == nil {
					td.Width, td.Height = cols, rows
				}
			}
			if flags.ShowHelp {
				term.Clear()
				term.WriteFrame(helpText())
			} else {
				panels := panelsFor(collectors, flags)
				frame, err := disp.Render(panels)
				if err != nil {
					pgvlog.Warnf("render failed: %s", err)
				} else {
					term.Clear()
					term.WriteFrame(frame)
				}
			}
		} else {
			panels := panelsFor(collectors, flags)
			out, err := disp.Render(panels)
			if err != nil {
				pgvlog.Warnf("render failed: %s", err)
			} else {
				if opts.clearScreen {
					fmt.Print("\x1b[2J\x1b[H")
				}
				fmt.Print(out)
			}
		}

		if flags.Paused {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}

		if flags.Realtime {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// resolveClusters autodetects co-located clusters (or dials a single
// --host/--port endpoint) and applies the -i/-V instance/version filters
// from spec §6. The cluster sections read from -c (opts.clusterConfigs)
// are not consulted here: clusters come only from autodetection or --host.
func resolveClusters(ctx context.Context, opts runOptions) ([]*discovery.Cluster, error) {
	var clusters []*discovery.Cluster

	if opts.host != "" {
		ep := discovery.Endpoint{Kind: discovery.EndpointTCP4, Host: opts.host, Port: opts.port}
		db, err := dialEndpoint(ctx, ep, opts)
		if err != nil {
			return nil, err
		}
		var versionNum int
		if err := db.QueryRowScalar(ctx, "SELECT setting::int FROM pg_settings WHERE name = 'server_version_num'", &versionNum); err != nil {
			return nil, err
		}
		clusters = []*discovery.Cluster{{
			Name:       opts.host,
			VersionNum: versionNum,
			DB:         db,
			Reconnect: func() (*store.DB, int32, error) {
				ndb, err := dialEndpoint(context.Background(), ep, opts)
				return ndb, 0, err
			},
		}}
	} else {
		discovered, err := discovery.DiscoverClusters(ctx)
		if err != nil {
			return nil, err
		}
		clusters = discovered
	}

	if opts.instanceFilter != "" {
		clusters = filterClusters(clusters, func(c *discovery.Cluster) bool { return c.Name == opts.instanceFilter })
	}
	if opts.versionFilter != "" {
		clusters = filterClusters(clusters, func(c *discovery.Cluster) bool {
			return clusterVersionString(c.VersionNum) == opts.versionFilter
		})
	}
	return clusters, nil
}

func filterClusters(clusters []*discovery.Cluster, keep func(*discovery.Cluster) bool) []*discovery.Cluster {
	var out []*discovery.Cluster
	for _, c := range clusters {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// clusterVersionString renders server_version_num (e.g. 90600 or 130004)
// as the "X.Y" or "X" form spec §6's -V filter argument is expressed in.
func clusterVersionString(versionNum int) string {
	major := versionNum / 10000
	if major >= 10 {
		return strconv.Itoa(major)
	}
	minor := (versionNum / 100) % 100
	return fmt.Sprintf("%d.%d", major, minor)
}

// dialEndpoint connects to ep, applying any -U/-d overrides from opts on
// top of the libpq defaults ep.ConnString already sets.
func dialEndpoint(ctx context.Context, ep discovery.Endpoint, opts runOptions) (*store.DB, error) {
	cfg, err := pgx.ParseConfig(ep.ConnString())
	if err != nil {
		return nil, err
	}
	if opts.user != "" {
		cfg.User = opts.user
	}
	if opts.dbname != "" {
		cfg.Database = opts.dbname
	}
	return store.NewWithConfig(ctx, cfg)
}

func watchedDirsFor(clusters []*discovery.Cluster) []collector.WatchedDir {
	dirs := make([]collector.WatchedDir, 0, len(clusters)*2)
	for _, c := range clusters {
		dirs = append(dirs, collector.WatchedDir{Cluster: c.Name, Label: "data", Path: c.WorkDir})
		dirs = append(dirs, collector.WatchedDir{Cluster: c.Name, Label: "wal", Path: c.WorkDir + "/pg_wal"})
	}
	return dirs
}

func buildCollectors(opts runOptions, clusters []*discovery.Cluster, sampler *collector.DiskSampler) []collector.Collector {
	tpr := defaultTicksPerRefresh

	cs := []collector.Collector{
		collector.NewHostCollector(tpr * 5),
		collector.NewSystemCollector(tpr),
		collector.NewMemoryCollector(tpr),
		collector.NewPartitionCollector(tpr, sampler, func() []collector.WatchedDir {
			return watchedDirsFor(clusters)
		}),
	}

	for _, cl := range clusters {
		cl := cl
		cs = append(cs, collector.NewPostgresCollector(
			tpr, cl.Name, cl.PostmasterPID, cl.DB, cl.VersionNum, opts.alwaysTrack,
			func() (*store.DB, int32, error) { return cl.Reconnect() },
		))
	}
	return cs
}

// panelsFor projects visible collectors into display panels, applying the
// auxiliary-process filter (spec §4.6: display-time only, never affects
// collection) to any row carrying a "type" column.
func panelsFor(collectors []collector.Collector, flags *uiflags.Flags) []display.Panel {
	panels := make([]display.Panel, 0, len(collectors))
	for _, c := range collectors {
		if !flags.Visible(c.Ident()) {
			continue
		}
		panels = append(panels, display.Panel{
			Ident:   c.Ident(),
			Columns: c.Columns(),
			Rows:    filterAuxRows(c.Rows(), flags),
		})
	}
	return panels
}

// filterAuxRows drops rows whose "type" column is neither backend nor
// autovacuum when the aux filter is on, per spec §4.6's auxiliary filter.
// Rows without a "type" column (every non-Postgres collector) pass through
// untouched.
func filterAuxRows(rows []sample.Row, flags *uiflags.Flags) []sample.Row {
	if !flags.FilterAux {
		return rows
	}
	out := make([]sample.Row, 0, len(rows))
	for _, r := range rows {
		t, ok := r["type"]
		if !ok {
			out = append(out, r)
			continue
		}
		switch t.String() {
		case "backend", "autovacuum":
			out = append(out, r)
		}
	}
	return out
}

func buildDisplayer(mode string) (display.Displayer, terminal.Terminal, error) {
	switch mode {
	case "console":
		return &display.LineDisplayer{Colorize: true}, nil, nil
	case "json":
		return &display.JSONDisplayer{}, nil, nil
	case "curses":
		term, err := terminal.NewANSITerminal()
		if err != nil {
			return nil, nil, err
		}
		cols, rows, _ := term.Size()
		return &display.TerminalDisplayer{Width: cols, Height: rows}, term, nil
	default:
		return nil, nil, fmt.Errorf("unknown output mode %q", mode)
	}
}

// handleKeys drains any pending keypress and applies it to flags;
// non-blocking, matching the reference tool's poll_keys. The key set is
// spec §6's "Keyboard (curses mode)" list: s f u a t r h q.
func handleKeys(term terminal.Terminal, flags *uiflags.Flags) {
	r, ok := term.ReadKey()
	if !ok {
		return
	}
	switch r {
	case 's':
		flags.FilterAux = !flags.FilterAux
	case 'f':
		flags.Paused = !flags.Paused
	case 'u':
		flags.DisplayUnits = !flags.DisplayUnits
	case 'a':
		flags.AutohideFields = !flags.AutohideFields
	case 't':
		flags.Notrim = !flags.Notrim
	case 'r':
		flags.Realtime = !flags.Realtime
	case 'h':
		flags.ShowHelp = !flags.ShowHelp
	case 'q':
		flags.Quit = true
	}
}

func helpText() string {
	return "pgview — keys: s=aux filter  f=freeze  u=units  a=autohide  t=trim  r=realtime  h=help  q=quit\n"
}
