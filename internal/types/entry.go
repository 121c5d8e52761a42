package types

import "time"

// Attr is a bit-set over file attributes, mirroring the NTFS attribute
// bits a USN record or $STANDARD_INFORMATION carries. Directory and
// ReparsePoint are load-bearing for TreeBuilder and the Directory
// source's traversal policy; the rest are carried through for hosts
// that want to render them.
type Attr uint32

const (
	AttrReadOnly Attr = 1 << iota
	AttrHidden
	AttrSystem
	AttrDirectory
	AttrArchive
	AttrDevice
	AttrNormal
	AttrTemporary
	AttrSparseFile
	AttrReparsePoint
	AttrCompressed
	AttrOffline
	AttrNotContentIndexed
	AttrEncrypted
)

// Has reports whether all bits in want are set.
func (a Attr) Has(want Attr) bool { return a&want == want }

// Entry is one record observed by a ScanSource: the zero-allocation
// value carrying id, parentage, attributes, sizes, timestamps and name
// for a single filesystem object. Entries are transient — created by a
// ScanSource, consumed exactly once by a TreeBuilder, then discarded.
type Entry struct {
	FileID       FileID
	ParentFileID FileID
	Attributes   Attr
	Size         int64 // logical byte length; 0 for directories
	AllocSize    int64 // on-disk footprint including cluster slack
	CreationTime int64 // FILETIME-compatible ticks
	WriteTime    int64 // FILETIME-compatible ticks
	Name         string
	LinkCount    uint32
}

// IsDir reports whether the entry names a directory.
func (e Entry) IsDir() bool { return e.Attributes.Has(AttrDirectory) }

// IsReparsePoint reports whether the entry carries a reparse tag.
func (e Entry) IsReparsePoint() bool { return e.Attributes.Has(AttrReparsePoint) }

// filetimeEpochOffset is the number of 100ns ticks between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset = 116444736000000000

// FiletimeToTime converts a FILETIME-compatible 64-bit tick count (100ns
// units since 1601-01-01) to a time.Time. Entries carry raw ticks so the
// hot path never pays for a conversion it doesn't need; TreeBuilder calls
// this once per node when it fills TreeNode.ModTime.
func FiletimeToTime(ticks int64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	unix100ns := ticks - filetimeEpochOffset
	sec := unix100ns / 10000000
	nsec := (unix100ns % 10000000) * 100
	return time.Unix(sec, nsec).UTC()
}

// TimeToFiletime converts a time.Time to FILETIME-compatible ticks, the
// inverse of FiletimeToTime. Used by the Directory source, which only
// ever has a time.Time from os.FileInfo.
func TimeToFiletime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	unixNsec := t.UnixNano()
	return unixNsec/100 + filetimeEpochOffset
}

// ScanProgress reports scan progress to the host via the Coordinator's
// progress callback. Percent is non-decreasing across a successful scan
// except when reset to 0 on error/cancel; the final report is exactly
// 100.
type ScanProgress struct {
	Percent        float64
	FilesProcessed int
	Elapsed        time.Duration
	CurrentPath    string
	Message        string
}

// ProgressCallback is invoked from the Coordinator's task context; it
// must not block. Hosts that need to marshal to a UI thread do so
// themselves.
type ProgressCallback func(ScanProgress)
