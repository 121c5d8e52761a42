// Package treebuilder implements the streaming TreeBuilder: it ingests
// Entries in arbitrary order, reconstructs hierarchy by id, and
// aggregates sizes on finalization. It never holds bidirectional
// parent/child pointers — ids only, materialized once at Build — which
// is what makes a later parallel aggregation pass over the finished
// tree safe without synchronization.
package treebuilder

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ivoronin/volscan/internal/types"
)

var (
	errDepthExceeded    = errors.New("parent chain exceeds maximum resolvable depth")
	errCycleUnreachable = errors.New("node unreachable from root, likely a parent-id cycle")
)

// maxPathDepth bounds both path reconstruction and tree recursion
// against malformed/cyclic parent chains: very deep chains (up to 100
// levels) resolve; in a deeper chain, descent stops at depth 100 without
// crashing and the levels below are re-attached directly under the root
// by attachUnreachable.
const maxPathDepth = 100

type state int

const (
	stateAccumulating state = iota
	stateFinalizing
	stateBuilt
)

type nodeBuilder struct {
	entry types.Entry
}

// Builder is a single-use streaming consumer: feed entries via OnEntry,
// then call Build exactly once. It is not safe for concurrent use —
// every field here assumes a single consumer goroutine.
type Builder struct {
	scanRoot string
	rootName string

	nodesByID        map[types.FileID]*nodeBuilder
	parentOf         map[types.FileID]types.FileID
	childrenByParent map[types.FileID][]types.FileID
	visitedIDs       map[types.FileID]struct{}

	rootFileID types.FileID
	rootSeen   bool

	totalFiles       int
	totalDirectories int

	incomplete bool
	state      state
	cachedRoot *types.TreeNode

	// onError, if set, is called for recoverable InternalInvariant
	// conditions encountered during Build (cycle/linkage repair). Never
	// called for anything that would abort the scan — by the time
	// Build runs, cancellation and fatal source errors have already
	// been handled by the Coordinator.
	onError func(kind types.ErrorKind, path string, err error)
}

// New creates a Builder bound to the normalized scan root path.
func New(scanRoot string) *Builder {
	return &Builder{
		scanRoot:         scanRoot,
		rootName:         filepath.Base(scanRoot),
		nodesByID:        make(map[types.FileID]*nodeBuilder),
		parentOf:         make(map[types.FileID]types.FileID),
		childrenByParent: make(map[types.FileID][]types.FileID),
		visitedIDs:       make(map[types.FileID]struct{}),
	}
}

// SetErrorSink installs a callback for recoverable invariant violations
// discovered during Build (cycles, unreachable ids).
func (b *Builder) SetErrorSink(f func(kind types.ErrorKind, path string, err error)) {
	b.onError = f
}

// Stats returns the running file/directory counts, usable by the
// Coordinator for progress reporting while the stream is still open.
func (b *Builder) Stats() (files, directories int) {
	return b.totalFiles, b.totalDirectories
}

// OnEntry ingests one Entry. Legal only while the Builder is
// Accumulating (i.e. before Build has been called).
func (b *Builder) OnEntry(e types.Entry) {
	if b.state != stateAccumulating {
		return
	}

	if _, dup := b.visitedIDs[e.FileID]; dup {
		// Hard links, duplicated ids, cycle-safety: drop silently so
		// each unique inode counts once even if multiple paths reach
		// it.
		return
	}
	b.visitedIDs[e.FileID] = struct{}{}

	if e.IsDir() {
		b.totalDirectories++
	} else {
		b.totalFiles++
	}

	isRoot := b.isRootEntry(e)
	if isRoot && !b.rootSeen {
		b.rootFileID = e.FileID
		b.rootSeen = true
	}

	b.nodesByID[e.FileID] = &nodeBuilder{entry: e}

	if !isRoot {
		b.parentOf[e.FileID] = e.ParentFileID
		b.childrenByParent[e.ParentFileID] = append(b.childrenByParent[e.ParentFileID], e.FileID)
	}
}

// isRootEntry applies the root detection policy: empty name, name
// matching the scan root's final path segment, a self-referencing
// parent id, or the NTFS root sentinel.
func (b *Builder) isRootEntry(e types.Entry) bool {
	if e.Name == "" {
		return true
	}
	if strings.EqualFold(e.Name, b.rootName) {
		return true
	}
	if e.ParentFileID == e.FileID {
		return true
	}
	if e.FileID == types.RootSentinelID {
		return true
	}
	return false
}

// Build finalizes the tree: synthesizing a root if none was observed,
// repairing orphaned/cyclic linkage, and recursively aggregating sizes
// post-order. Legal only once; subsequent calls return the same
// previously-built result.
func (b *Builder) Build() *types.TreeNode {
	if b.state == stateBuilt {
		return b.cachedRoot
	}
	b.state = stateFinalizing

	if !b.rootSeen {
		// No entry was ever flagged as root: synthesize one.
		b.rootFileID = types.RootSentinelID
		b.nodesByID[b.rootFileID] = &nodeBuilder{entry: types.Entry{
			FileID:       b.rootFileID,
			ParentFileID: b.rootFileID,
			Attributes:   types.AttrDirectory,
			Name:         b.rootName,
		}}
	}

	b.repairOrphans()

	visited := make(map[types.FileID]bool, len(b.nodesByID))
	root := b.buildNode(b.rootFileID, 0, b.scanRoot, visited)

	b.attachUnreachable(root, visited)

	b.cachedRoot = root
	b.state = stateBuilt
	return root
}

// Incomplete reports whether Build had to repair a cycle or otherwise
// couldn't resolve linkage cleanly (types.ScanResult.Incomplete mirrors
// this).
func (b *Builder) Incomplete() bool { return b.incomplete }

// repairOrphans re-homes any children whose recorded parent never
// arrived directly under the root, giving orphan nodes a synthetic path
// under the scan root. This is the one full pass over childrenByParent's
// keys Build needs — proportional to the number of distinct parent ids,
// not the number of entries.
func (b *Builder) repairOrphans() {
	for parentID, kids := range b.childrenByParent {
		if parentID == b.rootFileID {
			continue
		}
		if _, ok := b.nodesByID[parentID]; ok {
			continue
		}
		b.childrenByParent[b.rootFileID] = append(b.childrenByParent[b.rootFileID], kids...)
		delete(b.childrenByParent, parentID)
		for _, k := range kids {
			b.parentOf[k] = b.rootFileID
		}
	}
}

// buildNode recursively constructs the immutable TreeNode for id,
// post-order: children are built first, their aggregated sizes summed,
// then id's own size is added. visited guards against an id appearing
// in more than one TreeNode (property #2) and against cycles — both
// collapse to "already placed, skip".
func (b *Builder) buildNode(id types.FileID, depth int, path string, visited map[types.FileID]bool) *types.TreeNode {
	if visited[id] {
		return nil
	}
	visited[id] = true

	nb := b.nodesByID[id]
	node := &types.TreeNode{
		FileID:          id,
		Name:            nb.entry.Name,
		FullPath:        path,
		IsDir:           nb.entry.IsDir(),
		AllocationBytes: nb.entry.AllocSize,
		LinkCount:       nb.entry.LinkCount,
		ModTime:         types.FiletimeToTime(nb.entry.WriteTime),
	}

	ownSize := nb.entry.Size
	if node.IsDir {
		ownSize = 0
	}

	if depth >= maxPathDepth && len(b.childrenByParent[id]) > 0 {
		// Truncate further descent without crashing (property #12);
		// this node still aggregates its own size, just no deeper
		// children.
		node.SizeBytes = ownSize
		b.markIncomplete(types.KindInternalInvariant, path, errDepthExceeded)
		return node
	}

	childIDs := b.childrenByParent[id]
	var total, totalAlloc int64
	children := make([]*types.TreeNode, 0, len(childIDs))
	for _, cid := range childIDs {
		cnb := b.nodesByID[cid]
		childPath := filepath.Join(path, cnb.entry.Name)
		child := b.buildNode(cid, depth+1, childPath, visited)
		if child == nil {
			continue
		}
		children = append(children, child)
		total += child.SizeBytes
		totalAlloc += child.AllocationBytes
	}

	sortChildren(children)

	node.Children = children
	node.SizeBytes = ownSize + total
	node.AllocationBytes += totalAlloc
	return node
}

// attachUnreachable finds any observed id that buildNode never placed —
// possible when a parent-pointer cycle exists entirely among non-root
// nodes, disconnected from root, when buildNode stopped descending at
// maxPathDepth above it, or when a second entry matched the root
// detection policy (root entries are never linked to a parent) — and
// attaches each as an
// extra child of root, flagging the result Incomplete: tree linkage was
// impossible to fully resolve, so a partial tree is returned flagged
// incomplete.
func (b *Builder) attachUnreachable(root *types.TreeNode, visited map[types.FileID]bool) {
	var extra []*types.TreeNode
	for id := range b.nodesByID {
		if visited[id] {
			continue
		}
		nb := b.nodesByID[id]
		path := filepath.Join(root.FullPath, nb.entry.Name)
		node := b.buildNode(id, 1, path, visited)
		if node == nil {
			continue
		}
		extra = append(extra, node)
		root.SizeBytes += node.SizeBytes
		root.AllocationBytes += node.AllocationBytes
		b.markIncomplete(types.KindInternalInvariant, path, errCycleUnreachable)
	}
	if len(extra) > 0 {
		root.Children = append(root.Children, extra...)
		sortChildren(root.Children)
	}
}

func (b *Builder) markIncomplete(kind types.ErrorKind, path string, err error) {
	b.incomplete = true
	if b.onError != nil {
		b.onError(kind, path, err)
	}
}

// sortChildren orders children by SizeBytes descending, stable by Name
// ascending on a size tie.
func sortChildren(children []*types.TreeNode) {
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].SizeBytes != children[j].SizeBytes {
			return children[i].SizeBytes > children[j].SizeBytes
		}
		return children[i].Name < children[j].Name
	})
}
