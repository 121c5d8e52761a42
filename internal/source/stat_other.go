//go:build !unix

package source

import "os"

// statInode has no portable equivalent outside syscall.Stat_t platforms;
// the Directory source falls back to path hashing for FileID synthesis.
func statInode(os.FileInfo) (dev, ino uint64, ok bool) { return 0, 0, false }

// statAlloc has no cheap equivalent outside syscall.Stat_t platforms;
// the Directory source falls back to cluster-size rounding.
func statAlloc(os.FileInfo) (allocSize int64, linkCount uint32, ok bool) { return 0, 0, false }
