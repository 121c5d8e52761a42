//go:build windows

package coordinator

import (
	"path/filepath"

	"golang.org/x/sys/windows"

	"github.com/ivoronin/volscan/internal/types"
)

// sampleDriveStats queries the volume's capacity via
// GetDiskFreeSpaceEx, sampled once before the scan starts.
func sampleDriveStats(volumeRoot string) types.DriveStats {
	vol := filepath.VolumeName(filepath.Clean(volumeRoot))
	if vol == "" {
		vol = volumeRoot
	}

	ptr, err := windows.UTF16PtrFromString(vol + `\`)
	if err != nil {
		return types.DriveStats{LetterOrLabel: vol}
	}

	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &free, &total, &totalFree); err != nil {
		return types.DriveStats{LetterOrLabel: vol}
	}

	return types.DriveStats{
		LetterOrLabel: vol,
		TotalBytes:    int64(total),
		FreeBytes:     int64(totalFree),
		UsedBytes:     int64(total - totalFree),
	}
}
