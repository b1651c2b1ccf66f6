// Command pgview is an interactive terminal monitor for co-located
// PostgreSQL clusters on a Linux host.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/lesovsky/pgview/internal/config"
	"github.com/lesovsky/pgview/internal/pgvlog"
)

// version is set by the release build process; left as a placeholder
// constant here since packaging itself is out of scope. kingpin.Version
// wires this to the "--version" long flag automatically.
const version = "dev"

// Flag letters match spec §6's external command-line surface exactly:
// -i NAME limit to named instance; -V VER limit to version; -t SECS tick
// length; -o output mode; -l FILE log file; -R clear screen each tick in
// non-curses modes; -c FILE cluster config; -P PID always-track PID
// (repeatable); -U -d -h -p standard PG connection fields.
var (
	flagInstance    = kingpin.Flag("instance", "limit to the named instance").Short('i').String()
	flagVersion     = kingpin.Flag("pg-version", "limit to clusters at this server version").Short('V').String()
	flagTickSeconds = kingpin.Flag("tick", "tick length in seconds").Short('t').Default("1").Int()
	flagOutput      = kingpin.Flag("output", "output mode: console, json, curses").Short('o').Default("curses").Enum("console", "json", "curses")
	flagLogFile     = kingpin.Flag("log-file", "log file path (default: stderr)").Short('l').String()
	flagClearScreen = kingpin.Flag("clear-screen", "clear the screen each tick in non-curses modes").Short('R').Bool()
	flagConfig      = kingpin.Flag("config", "path to cluster connection config (INI)").Short('c').String()
	flagTrackPID    = kingpin.Flag("track-pid", "always-track this backend PID (repeatable)").Short('P').Ints()
	flagUser        = kingpin.Flag("user", "override connection user for all clusters").Short('U').String()
	flagDbname      = kingpin.Flag("dbname", "override connection database for all clusters").Short('d').String()
	flagHost        = kingpin.Flag("host", "connect to a single cluster at this host instead of autodetecting").Short('h').String()
	flagPort        = kingpin.Flag("port", "port to use with --host").Short('p').Int()
)

func main() {
	kingpin.Version(version)
	kingpin.Parse()

	pgvlog.SetLevel("info")
	if *flagLogFile != "" {
		if err := pgvlog.SetOutputFile(*flagLogFile); err != nil {
			pgvlog.Errorf("open log file: %s", err)
			os.Exit(1)
		}
	}

	var clusterConfigs []config.ClusterConfig
	if *flagConfig != "" {
		cfgs, err := config.ReadFile(*flagConfig)
		if err != nil {
			pgvlog.Errorf("read config: %s", err)
			os.Exit(1)
		}
		clusterConfigs = cfgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		pgvlog.Info("signal received, shutting down")
		cancel()
	}()

	alwaysTrack := make(map[int]bool, len(*flagTrackPID))
	for _, pid := range *flagTrackPID {
		alwaysTrack[pid] = true
	}

	opts := runOptions{
		tick:           time.Duration(*flagTickSeconds) * time.Second,
		output:         *flagOutput,
		instanceFilter: *flagInstance,
		versionFilter:  *flagVersion,
		clearScreen:    *flagClearScreen,
		alwaysTrack:    alwaysTrack,
		user:           *flagUser,
		dbname:         *flagDbname,
		host:           *flagHost,
		port:           *flagPort,
		clusterConfigs: clusterConfigs,
	}

	if err := run(ctx, opts); err != nil {
		pgvlog.Errorf("exit: %s", err)
		os.Exit(1)
	}
}

type runOptions struct {
	tick           time.Duration
	output         string
	instanceFilter string
	versionFilter  string
	clearScreen    bool
	alwaysTrack    map[int]bool
	user           string
	dbname         string
	host           string
	port           int
	clusterConfigs []config.ClusterConfig
}
