package treebuilder

import (
	"testing"

	"github.com/ivoronin/volscan/internal/types"
)

func id(a, b uint64) types.FileID { return types.FileID{a, b} }

// =============================================================================
// Basic aggregation
// =============================================================================

func TestBuildAggregatesChildSizes(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 100, Name: "a.txt"})
	b.OnEntry(types.Entry{FileID: id(3, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 200, Name: "b.txt"})

	root := b.Build()
	if root.SizeBytes != 300 {
		t.Errorf("expected root size 300, got %d", root.SizeBytes)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
}

func TestBuildNestedDirectories(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "sub"})
	b.OnEntry(types.Entry{FileID: id(3, 1), ParentFileID: id(2, 1), Attributes: types.AttrNormal, Size: 50, Name: "c.txt"})

	root := b.Build()
	if root.SizeBytes != 50 {
		t.Errorf("expected root size 50, got %d", root.SizeBytes)
	}
	sub := root.Children[0]
	if sub.SizeBytes != 50 || !sub.IsDir {
		t.Errorf("expected sub directory with size 50, got size=%d isDir=%v", sub.SizeBytes, sub.IsDir)
	}
	if sub.Children[0].FullPath != "/mnt/data/sub/c.txt" {
		t.Errorf("unexpected full path: %s", sub.Children[0].FullPath)
	}
}

// =============================================================================
// Sorting (invariant: children sorted by size descending, name ascending tie)
// =============================================================================

func TestChildrenSortedDescendingWithNameTiebreak(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 100, Name: "z.txt"})
	b.OnEntry(types.Entry{FileID: id(3, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 100, Name: "a.txt"})
	b.OnEntry(types.Entry{FileID: id(4, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 50, Name: "m.txt"})

	root := b.Build()
	names := []string{root.Children[0].Name, root.Children[1].Name, root.Children[2].Name}
	want := []string{"a.txt", "z.txt", "m.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: want %s, got %s", i, want[i], names[i])
		}
	}
}

// =============================================================================
// Duplicate-id absorption (hard links collapse onto one node)
// =============================================================================

func TestDuplicateIDAbsorbed(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 100, Name: "a.txt"})
	// Second observation of the same id (e.g. a second hard-linked path)
	// must not double count.
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 100, Name: "a-link.txt"})

	root := b.Build()
	if root.SizeBytes != 100 {
		t.Errorf("expected duplicate id to count once, got size %d", root.SizeBytes)
	}
	if len(root.Children) != 1 {
		t.Errorf("expected 1 child after dedup, got %d", len(root.Children))
	}
}

// =============================================================================
// Orphan nodes (parent never arrives) attach under root
// =============================================================================

func TestOrphanAttachesUnderRoot(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	// parent id(2,1) never arrives
	b.OnEntry(types.Entry{FileID: id(3, 1), ParentFileID: id(2, 1), Attributes: types.AttrDirectory, Name: "orphan_child"})

	root := b.Build()
	if b.Incomplete() {
		t.Error("orphan re-homing is not itself an invariant failure, expected Incomplete false")
	}
	if len(root.Children) != 1 || root.Children[0].Name != "orphan_child" {
		t.Fatalf("expected orphan re-homed under root, got children: %+v", root.Children)
	}
}

// =============================================================================
// No root entry observed: synthesize one
// =============================================================================

func TestSynthesizesRootWhenNoneObserved(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(5, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 42, Name: "loose.txt"})

	root := b.Build()
	if root == nil {
		t.Fatal("expected a synthesized root")
	}
	if root.FullPath != "/mnt/data" {
		t.Errorf("expected synthesized root path /mnt/data, got %s", root.FullPath)
	}
	if root.SizeBytes != 42 {
		t.Errorf("expected aggregated size 42, got %d", root.SizeBytes)
	}
}

// =============================================================================
// Empty volume
// =============================================================================

func TestEmptyVolumeProducesEmptyRoot(t *testing.T) {
	b := New("/mnt/data")
	root := b.Build()
	if root == nil {
		t.Fatal("expected a synthesized root for an empty volume")
	}
	if root.SizeBytes != 0 || len(root.Children) != 0 {
		t.Errorf("expected empty root, got size=%d children=%d", root.SizeBytes, len(root.Children))
	}
}

// =============================================================================
// Deep chain truncation (property: 100 levels resolve, 101 truncated)
// =============================================================================

func TestDeepChainTruncatedWithoutCrashing(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(0, 0), ParentFileID: id(0, 0), Attributes: types.AttrDirectory, Name: "data"})

	const depth = 150
	for i := 1; i <= depth; i++ {
		parent := id(0, uint64(i-1))
		if i == 1 {
			parent = id(0, 0)
		}
		b.OnEntry(types.Entry{
			FileID:       id(0, uint64(i)),
			ParentFileID: parent,
			Attributes:   types.AttrDirectory,
			Name:         "d",
		})
	}

	root := b.Build()
	if root == nil {
		t.Fatal("expected Build not to crash on a 150-level chain")
	}
	if !b.Incomplete() {
		t.Error("expected Incomplete to be set once the depth cap is exceeded")
	}
}

// =============================================================================
// Idempotence: Build called twice returns the same result
// =============================================================================

func TestBuildIsIdempotent(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(1, 1), Attributes: types.AttrNormal, Size: 10, Name: "a.txt"})

	first := b.Build()
	second := b.Build()
	if first != second {
		t.Error("expected Build to return the same cached root on a second call")
	}
}

// =============================================================================
// Uniqueness: every observed id appears in exactly one TreeNode, even
// across a disconnected parent-id cycle.
// =============================================================================

func TestCycleAttachesUnreachableNodesOnce(t *testing.T) {
	b := New("/mnt/data")
	b.OnEntry(types.Entry{FileID: id(1, 1), ParentFileID: id(1, 1), Attributes: types.AttrDirectory, Name: "data"})
	// a and c form a two-node cycle, disconnected from root.
	b.OnEntry(types.Entry{FileID: id(2, 1), ParentFileID: id(3, 1), Attributes: types.AttrDirectory, Name: "a"})
	b.OnEntry(types.Entry{FileID: id(3, 1), ParentFileID: id(2, 1), Attributes: types.AttrNormal, Size: 7, Name: "c"})

	root := b.Build()
	if !b.Incomplete() {
		t.Error("expected a disconnected cycle to mark the result incomplete")
	}

	seen := map[types.FileID]int{}
	var walk func(n *types.TreeNode)
	walk = func(n *types.TreeNode) {
		seen[n.FileID]++
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	for fid, count := range seen {
		if count != 1 {
			t.Errorf("id %s appeared %d times, want exactly 1", fid, count)
		}
	}
}
