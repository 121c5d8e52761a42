//go:build unix

package source

import (
	"os"
	"syscall"
)

// statInode extracts (dev, ino) from info's Sys() on Unix platforms,
// letting the Directory source fold hard-linked paths onto the same
// FileID. ok is false if the underlying syscall.Stat_t isn't available.
func statInode(info os.FileInfo) (dev, ino uint64, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(st.Dev), st.Ino, true //nolint:unconvert // Dev is platform-width
}

// statAlloc extracts actual on-disk block usage and the hard-link count
// from info's Sys(). Using real block counts (512-byte units) handles
// sparse files correctly, unlike the cluster-rounding approximation.
func statAlloc(info os.FileInfo) (allocSize int64, linkCount uint32, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return st.Blocks * 512, uint32(st.Nlink), true
}
