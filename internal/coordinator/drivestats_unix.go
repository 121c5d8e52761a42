//go:build unix

package coordinator

import (
	"path/filepath"
	"syscall"

	"github.com/ivoronin/volscan/internal/types"
)

// sampleDriveStats queries the containing filesystem's capacity via
// statfs, sampled once before the scan starts — never derived from the
// scan tree, since the scan itself perturbs volume metadata as it runs.
// A failure here isn't fatal to the scan — it just leaves DriveStats
// zeroed.
func sampleDriveStats(volumeRoot string) types.DriveStats {
	abs, err := filepath.Abs(volumeRoot)
	if err != nil {
		abs = volumeRoot
	}

	var st syscall.Statfs_t
	if err := syscall.Statfs(abs, &st); err != nil {
		return types.DriveStats{LetterOrLabel: abs}
	}

	blockSize := uint64(st.Bsize) //nolint:unconvert // Bsize is platform-width
	total := blockSize * uint64(st.Blocks)
	free := blockSize * uint64(st.Bavail)

	return types.DriveStats{
		LetterOrLabel: abs,
		TotalBytes:    int64(total),
		FreeBytes:     int64(free),
		UsedBytes:     int64(total - blockSize*uint64(st.Bfree)),
	}
}
