//go:build !windows

package source

// newMFTSource is unavailable on non-Windows hosts: "wrong OS" is
// treated as source-unavailable, recoverable by falling back to the
// Directory source. The factory (Select) never even attempts a handle
// open here.
func newMFTSource(volumeRoot string) (ScanSource, bool) { return nil, false }
