package types

import "time"

// TreeNode is the immutable output of a finished TreeBuilder.Build: a
// directory's SizeBytes is the recursive aggregate over its children; a
// file's SizeBytes equals its own logical size. Children are sorted by
// SizeBytes descending, stable by Name on a size tie.
type TreeNode struct {
	FileID          FileID
	Name            string
	FullPath        string
	IsDir           bool
	SizeBytes       int64
	AllocationBytes int64
	LinkCount       uint32
	ModTime         time.Time
	Children        []*TreeNode
}

// DriveStats describes the volume a scan ran against, sampled once at
// scan start — never derived from the scan tree, since the scan itself
// perturbs volume metadata (atime) as it runs.
type DriveStats struct {
	LetterOrLabel string
	TotalBytes    int64
	UsedBytes     int64
	FreeBytes     int64
}

// TopItem is one entry in the top-N largest files list. By convention
// directories are excluded — this list is files only.
type TopItem struct {
	Name      string
	FullPath  string
	SizeBytes int64
	IsDir     bool
}

// ExtensionGroup summarizes total size and file count for one lower-cased
// file extension. Files without an extension are bucketed as "<none>"
// during accumulation and excluded from the final top-15 summary.
type ExtensionGroup struct {
	Extension string
	TotalSize int64
	FileCount int
}

// ScanResult is the single value returned on a successful scan: the
// sampled drive stats, the fully built tree, and the two post-scan
// summaries. No partial results are ever emitted except via progress.
type ScanResult struct {
	Drive       DriveStats
	Root        *TreeNode
	TopFiles    []TopItem
	ByExtension []ExtensionGroup
	Incomplete  bool // set by TreeBuilder when a depth/linkage invariant was exceeded
}
