package source

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ivoronin/volscan/internal/types"
)

// entryChanBuffer sizes the fan-in channel between walker goroutines and
// the single TreeBuilder consumer. A single consumer makes an unbounded
// channel technically safe, but a bounded buffer gives soft backpressure
// against a directory tree with millions of small files without
// requiring the producer to block on every send.
const entryChanBuffer = 4096

// yieldEvery controls how often a walker goroutine calls runtime.Gosched
// after emitting entries, a cooperative-scheduling yield on a busy
// GOMAXPROCS=1 host.
const yieldEvery = 100

// DirectorySource is the portable single-pass directory enumeration
// ScanSource. It visits each directory exactly once, yielding
// one Entry per child before recursing, and never follows reparse
// points (symlinks). Its fan-out/fan-in shape is a semaphore-gated
// walker goroutine per directory feeding a single collector draining a
// shared channel.
type DirectorySource struct {
	workers int
	// TrustDeviceBoundaries controls hard-link id synthesis: false (the
	// default, and the safe choice for network mounts) folds only the
	// inode into FileID; true also folds in the device id.
	TrustDeviceBoundaries bool
}

// NewDirectorySource creates a DirectorySource bounded to the given
// concurrent-directory-read count. workers <= 0 defaults to 2x CPU
// count, a reasonable default for I/O-bound work.
func NewDirectorySource(workers int) *DirectorySource {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	return &DirectorySource{workers: workers}
}

func (s *DirectorySource) Description() string { return "directory (portable fallback)" }

// EstimateEntryCount has no cheap way to count entries without a full
// walk on this source, so it always reports "unknown" (0), same as the
// spec allows.
func (s *DirectorySource) EstimateEntryCount(string) int { return 0 }

func (s *DirectorySource) Scan(ctx context.Context, volumeRoot string) (<-chan types.Entry, <-chan error) {
	entries := make(chan types.Entry, entryChanBuffer)
	errs := make(chan error, 256)

	go func() {
		defer close(entries)
		defer close(errs)

		root, err := filepath.Abs(volumeRoot)
		if err != nil {
			errs <- types.NewScanError(types.KindHostIO, volumeRoot, err)
			return
		}

		info, err := os.Lstat(root)
		if err != nil {
			errs <- types.NewScanError(types.KindHostIO, root, err)
			return
		}

		rootEntry := s.entryFor(root, types.FileID{}, info)
		select {
		case entries <- rootEntry:
		case <-ctx.Done():
			return
		}
		if !info.IsDir() {
			return
		}

		sem := types.NewSemaphore(s.workers)
		var wg sync.WaitGroup
		var yielded atomic.Int64

		s.walkDirectory(ctx, root, rootEntry.FileID, sem, &wg, entries, errs, &yielded)
		wg.Wait()
	}()

	return entries, errs
}

// walkDirectory spawns a goroutine that lists one directory, emitting
// the child entry first and queuing directory children for subsequent
// recursive enumeration.
func (s *DirectorySource) walkDirectory(
	ctx context.Context,
	dir string,
	dirID types.FileID,
	sem types.Semaphore,
	wg *sync.WaitGroup,
	entries chan<- types.Entry,
	errs chan<- error,
	yielded *atomic.Int64,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		sem.Acquire()
		children, subdirs, err := s.listDirectory(dir, dirID)
		sem.Release()

		if err != nil {
			// Access-denied or not-found for a directory: log and
			// continue with no entries for that subtree, never abort
			// the scan.
			errs <- types.NewScanError(types.KindAccessDenied, dir, err)
			return
		}

		for _, child := range children {
			select {
			case entries <- child.entry:
			case <-ctx.Done():
				return
			}
			if yielded.Add(1)%yieldEvery == 0 {
				runtime.Gosched()
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		for _, sub := range subdirs {
			s.walkDirectory(ctx, sub.path, sub.id, sem, wg, entries, errs, yielded)
		}
	}()
}

type childEntry struct {
	entry types.Entry
}

type childDir struct {
	path string
	id   types.FileID
}

// listDirectory reads one directory's immediate children, skipping "."
// and "..", and returns the Entry for each child plus the subdirectory
// paths to recurse into. Reparse points (symlinks) are returned as
// entries but never added to subdirs — the source never descends into
// one.
func (s *DirectorySource) listDirectory(dir string, dirID types.FileID) ([]childEntry, []childDir, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var children []childEntry
	var subdirs []childDir

	const batchSize = 1000
	for {
		names, err := f.ReadDir(batchSize)
		if len(names) == 0 {
			if err != nil {
				break
			}
			break
		}

		for _, d := range names {
			name := d.Name()
			if name == "." || name == ".." {
				continue
			}
			childPath := filepath.Join(dir, name)
			info, ierr := d.Info()
			if ierr != nil {
				continue
			}

			e := s.entryFor(childPath, dirID, info)
			e.ParentFileID = dirID
			children = append(children, childEntry{entry: e})

			if info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
				subdirs = append(subdirs, childDir{path: childPath, id: e.FileID})
			}
		}
	}

	return children, subdirs, nil
}

// entryFor builds the Entry for one path. The parentID argument is
// filled in by the caller for non-root entries; for the root it is left
// zero and overwritten to equal the root's own id.
func (s *DirectorySource) entryFor(path string, _ types.FileID, info os.FileInfo) types.Entry {
	id := s.fileID(path, info)

	var attrs types.Attr
	if info.IsDir() {
		attrs |= types.AttrDirectory
	} else {
		attrs |= types.AttrNormal
	}
	if info.Mode()&os.ModeSymlink != 0 {
		attrs |= types.AttrReparsePoint
	}
	name := filepath.Base(path)

	size, allocSize, linkCount := s.sizesFor(info)
	if info.IsDir() {
		size = 0
	}

	e := types.Entry{
		FileID:       id,
		ParentFileID: id,
		Attributes:   attrs,
		Size:         size,
		AllocSize:    allocSize,
		CreationTime: types.TimeToFiletime(info.ModTime()),
		WriteTime:    types.TimeToFiletime(info.ModTime()),
		Name:         name,
		LinkCount:    linkCount,
	}
	return e
}

// fileID synthesizes a FileID for path. When the platform exposes
// device/inode metadata (statInode in stat_unix.go), two hard-linked
// paths collapse onto the same id so TreeBuilder's ordinary visited-id
// dedup absorbs them — no separate screening stage needed. Otherwise it
// falls back to hashing the normalized absolute path.
func (s *DirectorySource) fileID(path string, info os.FileInfo) types.FileID {
	if dev, ino, ok := statInode(info); ok {
		if !s.TrustDeviceBoundaries {
			dev = 0
		}
		return types.InodeFileID(dev, ino)
	}
	return types.PathFileID(path)
}

// sizesFor extracts logical size, allocation size, and link count from
// info, using real block-count accounting where the platform exposes it
// and a cluster-rounding approximation otherwise.
func (s *DirectorySource) sizesFor(info os.FileInfo) (size, allocSize int64, linkCount uint32) {
	size = info.Size()
	if alloc, nlink, ok := statAlloc(info); ok {
		return size, alloc, nlink
	}
	const clusterSize = 4096
	allocSize = ((size + clusterSize - 1) / clusterSize) * clusterSize
	return size, allocSize, 1
}
