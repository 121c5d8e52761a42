// Package source implements the ScanSource contract: polymorphic
// producers of a lazy, finite sequence of types.Entry for one volume
// root. Two concrete variants share the contract — the NTFS MFT fast
// path (mft_windows.go, //go:build windows) and the portable Directory
// fallback (directory.go) — and a factory (Select) picks between them,
// one stage per concern, each independently testable.
package source

import (
	"context"
	"os"

	"github.com/ivoronin/volscan/internal/types"
)

// ScanSource produces a lazy, finite, non-restartable sequence of
// Entries for one volume root. Ordering is unspecified; the stream must
// be driveable to completion or cancelled at any point via ctx.
//
// Scan returns immediately. The returned entries channel is closed when
// the stream is exhausted, faulted, or cancelled; the returned errs
// channel carries non-fatal (AccessDenied, CorruptRecord) and fatal
// (HostIoError) failures as *types.ScanError and is closed once no more
// errors can arrive. Callers drain both until entries closes.
type ScanSource interface {
	Scan(ctx context.Context, volumeRoot string) (entries <-chan types.Entry, errs <-chan error)

	// EstimateEntryCount is a best-effort upper bound for progress
	// reporting; 0 means "unknown".
	EstimateEntryCount(volumeRoot string) int

	// Description is a human-readable strategy name.
	Description() string
}

// SelectOptions configures the scan-source factory.
type SelectOptions struct {
	// ForceDirectory skips the MFT fast path unconditionally, the
	// programmatic equivalent of FORCE_DIRECTORY_SCAN=1.
	ForceDirectory bool
	// Workers bounds the Directory source's concurrent directory reads.
	Workers int
}

// Select picks the optimal ScanSource for volumeRoot: MFT on
// Windows+NTFS+admin+successful test-open, Directory otherwise. It
// never returns an error — MFT unavailability is exactly the
// recoverable case the factory exists to absorb.
func Select(volumeRoot string, opts SelectOptions) ScanSource {
	if !opts.ForceDirectory && os.Getenv("FORCE_DIRECTORY_SCAN") != "1" {
		if mft, ok := newMFTSource(volumeRoot); ok {
			return mft
		}
	}
	return NewDirectorySource(opts.Workers)
}
