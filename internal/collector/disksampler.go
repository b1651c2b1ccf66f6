package collector

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lesovsky/pgview/internal/pgvlog"
)

// WatchedDir is one directory the sampler measures: a cluster's data
// directory or its WAL subdirectory.
type WatchedDir struct {
	Cluster string
	Label   string // "data" or "wal"
	Path    string
}

// DirUsage is one sampled directory: its total size on disk (du-equivalent)
// and the free space/total space of the filesystem backing it (df
// equivalent).
type DirUsage struct {
	WatchedDir
	SizeBytes  int64
	FreeBytes  int64
	TotalBytes int64
	Err        error
}

// DiskResult is one full sampling pass over every watched directory.
type DiskResult struct {
	At    time.Time
	Usage []DirUsage
}

// DiskSampler runs detached from the main tick loop (the Go analogue of the
// reference tool's DetachedDiskStatCollector, which runs as its own OS
// process): directory-size walks and statfs calls can block for longer than
// one display tick on a busy/slow filesystem, so they must never stall
// rendering.
//
// Hand-off uses a capacity-1 channel plus an explicit ack channel standing
// in for Python's multiprocessing.JoinableQueue.join()/task_done(): the
// sampler blocks after sending a result until the consumer acknowledges it,
// so a slow consumer naturally throttles the producer instead of piling up
// stale samples.
type DiskSampler struct {
	interval time.Duration
	resultCh chan DiskResult
	ackCh    chan struct{}
}

// NewDiskSampler builds a sampler with its hand-off channels; interval is
// how often it resamples (typically independent of, and often slower than,
// the display tick rate).
func NewDiskSampler(interval time.Duration) *DiskSampler {
	return &DiskSampler{
		interval: interval,
		resultCh: make(chan DiskResult, 1),
		ackCh:    make(chan struct{}),
	}
}

// Results returns the channel the partition collector should drain
// (non-blocking) each tick.
func (s *DiskSampler) Results() <-chan DiskResult { return s.resultCh }

// ack is called by the consumer after it has taken ownership of a result,
// unblocking the sampler to overwrite the slot with its next sample.
func (s *DiskSampler) ack() { s.ackCh <- struct{}{} }

// Ack is the consumer-facing entry point; call it once the received
// DiskResult has been fully consumed.
func (s *DiskSampler) Ack() { s.ack() }

// Run samples dirs forever on interval until ctx is canceled. It's meant to
// be started once in its own goroutine by the main loop.
func (s *DiskSampler) Run(ctx context.Context, dirsFn func() []WatchedDir) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dirs := dirsFn()
			result := DiskResult{At: time.Now(), Usage: make([]DirUsage, 0, len(dirs))}
			for _, d := range dirs {
				u := sampleDir(d)
				result.Usage = append(result.Usage, u)
			}

			select {
			case s.resultCh <- result:
			case <-ctx.Done():
				return
			}

			select {
			case <-s.ackCh:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sampleDir(d WatchedDir) DirUsage {
	size, err := duSize(d.Path)
	if err != nil {
		pgvlog.Warnf("disksampler: du %s: %s", d.Path, err)
		return DirUsage{WatchedDir: d, Err: err}
	}

	var st unix.Statfs_t
	if err := unix.Statfs(d.Path, &st); err != nil {
		pgvlog.Warnf("disksampler: statfs %s: %s", d.Path, err)
		return DirUsage{WatchedDir: d, SizeBytes: size, Err: err}
	}

	bsize := uint64(st.Bsize)
	return DirUsage{
		WatchedDir: d,
		SizeBytes:  size,
		FreeBytes:  int64(st.Bavail * bsize),
		TotalBytes: int64(st.Blocks * bsize),
	}
}

// duSize walks path and sums apparent file sizes, the same approximation
// `du` itself uses when not asked for block-rounded usage. No directory-size
// library exists anywhere in the retrieved example pack, so this is a
// direct filepath.Walk, matching partition_collector.py's own recursive
// walk over os.walk.
func duSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
