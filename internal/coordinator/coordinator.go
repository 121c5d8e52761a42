// Package coordinator drives one end-to-end scan: source selection,
// drive-stats sampling, streaming the chosen ScanSource into a
// TreeBuilder with bounded concurrency and periodic progress, and
// finally running the post-scan analyzers over the built tree. It is
// the one place that owns the scan's overall state machine; everything
// below it (source, treebuilder, analyzer) is a pure, stateless-between-
// calls component the Coordinator sequences.
package coordinator

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/ivoronin/volscan/internal/analyzer"
	"github.com/ivoronin/volscan/internal/source"
	"github.com/ivoronin/volscan/internal/treebuilder"
	"github.com/ivoronin/volscan/internal/types"
)

// State names the Coordinator's position in its run, surfaced mainly
// for logging and tests; hosts drive behavior off ScanProgress and the
// final error/result, not off State.
type State int

const (
	StateCreated State = iota
	StateEstimating
	StateScanning
	StateBuilding
	StateAnalyzing
	StateDone
	StateFaulted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateEstimating:
		return "Estimating"
	case StateScanning:
		return "Scanning"
	case StateBuilding:
		return "Building"
	case StateAnalyzing:
		return "Analyzing"
	case StateDone:
		return "Done"
	case StateFaulted:
		return "Faulted"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// progressInterval is how often Scan emits a ScanProgress snapshot to
// the host callback while entries are streaming in.
const progressInterval = 100 * time.Millisecond

// yieldEvery is the entry count at which the drain loop cooperatively
// yields, keeping a single CPU-bound TreeBuilder consumer from starving
// the goroutines feeding it on a GOMAXPROCS=1 host.
const yieldEvery = 10000

// Options configures one Coordinator.Scan call.
type Options struct {
	// ForceDirectory skips the MFT fast path, mirroring the
	// FORCE_DIRECTORY_SCAN env var the factory also honors directly.
	ForceDirectory bool
	// Workers bounds the Directory source's concurrent directory
	// reads; 0 means "let the source decide" (2x CPU count).
	Workers int
	// TopN sizes the top-files analyzer; 0 means the analyzer's own
	// default (20).
	TopN int
}

// Coordinator runs scans. It is stateless between calls and safe to
// reuse for multiple Scan invocations, though not concurrently for the
// same instance.
type Coordinator struct {
	opts   Options
	log    *slog.Logger
	debug  bool
	state  State
}

// New creates a Coordinator. Debug logging (to stderr, at Debug level) is
// enabled when SCANNER_DEBUG is set in the environment, read once here
// rather than per-call so a long-lived host process can't have it change
// mid-scan.
func New(opts Options) *Coordinator {
	debug := os.Getenv("SCANNER_DEBUG") != ""
	log := slog.Default()
	if debug {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return &Coordinator{
		opts:  opts,
		log:   log,
		debug: debug,
		state: StateCreated,
	}
}

// State reports the Coordinator's current position in its run.
func (c *Coordinator) State() State { return c.state }

// Scan runs one full scan of volumeRoot to completion or cancellation.
// progress, if non-nil, receives a snapshot roughly every 100ms plus a
// final 100% snapshot on success. Scan returns a non-nil error only for
// HostIoError, InternalInvariant escalations beyond what the tree can
// absorb, or cancellation (types.ErrScanAborted via errors.Is) — never
// for AccessDenied/CorruptRecord, which are logged and absorbed.
func (c *Coordinator) Scan(ctx context.Context, volumeRoot string, progress types.ProgressCallback) (types.ScanResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.state = StateEstimating
	drive := sampleDriveStats(volumeRoot)

	src := source.Select(volumeRoot, source.SelectOptions{
		ForceDirectory: c.opts.ForceDirectory,
		Workers:        c.opts.Workers,
	})
	c.log.Debug("scan source selected", "strategy", src.Description(), "root", volumeRoot)
	estimate := src.EstimateEntryCount(volumeRoot)

	c.state = StateScanning
	result, err := c.drain(ctx, cancel, src, volumeRoot, estimate, progress)
	if err != nil {
		c.state = StateFaulted
		if kind, ok := types.KindOf(err); ok && kind == types.KindScanAborted {
			c.state = StateCancelled
		}
		return types.ScanResult{}, err
	}

	c.state = StateAnalyzing
	c.emitProgress(progress, types.ScanProgress{Percent: 98, FilesProcessed: result.files, Elapsed: result.elapsed, Message: "analyzing"})
	top, byExt := analyzer.Analyze(result.root, c.opts.TopN)

	c.state = StateDone
	c.emitProgress(progress, types.ScanProgress{Percent: 100, FilesProcessed: result.files, Elapsed: result.elapsed, Message: "done"})

	return types.ScanResult{
		Drive:       drive,
		Root:        result.root,
		TopFiles:    top,
		ByExtension: byExt,
		Incomplete:  result.incomplete,
	}, nil
}

// drainResult carries what the drain loop produced, so drain itself
// stays a single function with one return path instead of threading
// out-params through the select loop.
type drainResult struct {
	root       *types.TreeNode
	incomplete bool
	files      int
	elapsed    time.Duration
}

// drain streams a ScanSource's entries into a TreeBuilder, fanning in
// entries and errors and emitting periodic progress, until both
// channels close or a fatal condition cancels the scan. This is the
// Coordinator's core loop: one consumer goroutine draining producer
// channels into a single accumulating state.
func (c *Coordinator) drain(
	ctx context.Context,
	cancel context.CancelFunc,
	src source.ScanSource,
	volumeRoot string,
	estimate int,
	progress types.ProgressCallback,
) (drainResult, error) {
	entries, errs := src.Scan(ctx, volumeRoot)
	builder := treebuilder.New(volumeRoot)
	builder.SetErrorSink(func(kind types.ErrorKind, path string, err error) {
		c.log.Warn("tree linkage repaired", "kind", kind.String(), "path", path, "err", err)
	})

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	start := time.Now()
	var processed int
	var fatal error
	var currentPath string

drain:
	for entries != nil || errs != nil {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			builder.OnEntry(e)
			processed++
			currentPath = e.Name
			if c.debug && processed%yieldEvery == 0 {
				c.log.Debug("scan progress", "processed", processed)
			}
			if processed%yieldEvery == 0 {
				runtime.Gosched()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			kind, _ := types.KindOf(err)
			switch kind {
			case types.KindAccessDenied, types.KindCorruptRecord:
				c.log.Warn("recoverable scan error", "kind", kind.String(), "err", err)
			default:
				fatal = err
				cancel()
				break drain
			}

		case <-ticker.C:
			c.emitProgress(progress, snapshot(estimate, processed, start, currentPath))

		case <-ctx.Done():
			if fatal == nil {
				fatal = types.NewScanError(types.KindScanAborted, volumeRoot, ctx.Err())
			}
			break drain
		}
	}

	if fatal == nil && ctx.Err() != nil {
		// The producer may have closed both channels in response to
		// cancellation before the ctx.Done() case ever won the select
		// race; ctx.Err() is the authoritative check once draining is
		// over.
		fatal = types.NewScanError(types.KindScanAborted, volumeRoot, ctx.Err())
	}

	if fatal != nil {
		return drainResult{}, fatal
	}

	c.state = StateBuilding
	c.emitProgress(progress, types.ScanProgress{Percent: 95, FilesProcessed: processed, Elapsed: time.Since(start), Message: "building tree"})
	root := builder.Build()
	files, _ := builder.Stats()

	return drainResult{
		root:       root,
		incomplete: builder.Incomplete(),
		files:      files,
		elapsed:    time.Since(start),
	}, nil
}

// snapshot computes one ScanProgress reading: when an
// upper-bound estimate exists, percent tracks processed/estimate;
// otherwise it falls back to a time-based heuristic. Both are capped at
// 95 so the only 100% report is the final one, after analysis too.
func snapshot(estimate, processed int, start time.Time, currentPath string) types.ScanProgress {
	elapsed := time.Since(start)
	var percent float64
	if estimate > 0 {
		percent = 100 * float64(processed) / float64(estimate)
	} else {
		percent = 2 * elapsed.Seconds()
	}
	if percent > 95 {
		percent = 95
	}
	return types.ScanProgress{
		Percent:        percent,
		FilesProcessed: processed,
		Elapsed:        elapsed,
		CurrentPath:    currentPath,
	}
}

func (c *Coordinator) emitProgress(cb types.ProgressCallback, p types.ScanProgress) {
	if cb == nil {
		return
	}
	cb(p)
}
