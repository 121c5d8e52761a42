//go:build !unix && !windows

package coordinator

import "github.com/ivoronin/volscan/internal/types"

// sampleDriveStats has no portable implementation on exotic targets
// (plan9, js/wasm); DriveStats is left zeroed rather than failing the
// scan over a cosmetic field.
func sampleDriveStats(volumeRoot string) types.DriveStats {
	return types.DriveStats{LetterOrLabel: volumeRoot}
}
