package types

import "errors"

// ErrorKind classifies a scan failure into exactly one of the kinds the
// core recognizes. Hosts branch on kind, never on message text — the
// core never formats OS-specific error codes for display.
type ErrorKind int

const (
	// KindSourceUnavailable means the MFT source couldn't open/query
	// (wrong OS, non-NTFS, no admin). Recoverable: the factory falls
	// back to the Directory source.
	KindSourceUnavailable ErrorKind = iota
	// KindHostIO means the volume wasn't ready, the path didn't exist,
	// or the host ran out of handles. Fatal: surfaced with path context.
	KindHostIO
	// KindAccessDenied means a single directory or file couldn't be
	// opened. Recoverable: logged, subtree skipped.
	KindAccessDenied
	// KindCorruptRecord means a USN record or directory entry was
	// malformed. Recoverable: record skipped, scan continues.
	KindCorruptRecord
	// KindScanAborted means cancellation was signalled. Terminal:
	// propagates without constructing a result.
	KindScanAborted
	// KindInternalInvariant means tree linkage invariants were
	// violated (e.g. cycle depth exceeded). Recoverable: a partial tree
	// is returned, flagged incomplete.
	KindInternalInvariant
)

func (k ErrorKind) String() string {
	switch k {
	case KindSourceUnavailable:
		return "SourceUnavailable"
	case KindHostIO:
		return "HostIoError"
	case KindAccessDenied:
		return "AccessDenied"
	case KindCorruptRecord:
		return "CorruptRecord"
	case KindScanAborted:
		return "ScanAborted"
	case KindInternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// ScanError wraps an underlying error with the kind the core assigns it
// and, where relevant, the path the failure occurred on.
type ScanError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Path == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Path + ": " + e.Err.Error()
}

func (e *ScanError) Unwrap() error { return e.Err }

// Sentinel kind markers for errors.Is comparisons. ScanError.Is matches
// against these so callers can write errors.Is(err, types.ErrScanAborted)
// without caring about the wrapped cause.
var (
	ErrSourceUnavailable  = &kindMarker{KindSourceUnavailable}
	ErrHostIO             = &kindMarker{KindHostIO}
	ErrAccessDenied       = &kindMarker{KindAccessDenied}
	ErrCorruptRecord      = &kindMarker{KindCorruptRecord}
	ErrScanAborted        = &kindMarker{KindScanAborted}
	ErrInternalInvariant  = &kindMarker{KindInternalInvariant}
)

type kindMarker struct{ kind ErrorKind }

func (m *kindMarker) Error() string { return m.kind.String() }

// Is implements errors.Is support for ScanError against the package's
// kind markers, so errors.Is(someScanError, types.ErrScanAborted) works
// regardless of the wrapped cause.
func (e *ScanError) Is(target error) bool {
	marker, ok := target.(*kindMarker)
	if !ok {
		return false
	}
	return marker.kind == e.Kind
}

// NewScanError constructs a ScanError of the given kind.
func NewScanError(kind ErrorKind, path string, err error) *ScanError {
	return &ScanError{Kind: kind, Path: path, Err: err}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps)
// is a *ScanError; ok is false otherwise.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
