//go:build unix

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/volscan/internal/types"
)

func createFile(t *testing.T, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := make([]byte, size)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func drain(t *testing.T, s ScanSource, root string) ([]types.Entry, []error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, errs := s.Scan(ctx, root)
	var gotEntries []types.Entry
	var gotErrs []error
	for entries != nil || errs != nil {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			gotEntries = append(gotEntries, e)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			gotErrs = append(gotErrs, err)
		}
	}
	return gotEntries, gotErrs
}

func TestDirectorySourceBasicWalk(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "file1.txt"), 100)
	createFile(t, filepath.Join(root, "file2.txt"), 200)
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(root, "subdir", "file3.txt"), 300)

	s := NewDirectorySource(2)
	entries, errs := drain(t, s, root)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}

	// root + file1 + file2 + subdir + file3
	if len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}

	sizes := map[int64]bool{}
	for _, e := range entries {
		sizes[e.Size] = true
	}
	for _, want := range []int64{100, 200, 300} {
		if !sizes[want] {
			t.Errorf("missing entry with size %d", want)
		}
	}
}

func TestDirectorySourceUniqueFileIDs(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "a.txt"), 10)
	createFile(t, filepath.Join(root, "b.txt"), 20)

	s := NewDirectorySource(2)
	entries, _ := drain(t, s, root)

	seen := map[types.FileID]bool{}
	for _, e := range entries {
		if seen[e.FileID] {
			t.Errorf("duplicate FileID observed: %v", e.FileID)
		}
		seen[e.FileID] = true
	}
}

func TestDirectorySourceEmptyDir(t *testing.T) {
	root := t.TempDir()
	s := NewDirectorySource(2)
	entries, errs := drain(t, s, root)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if len(entries) != 1 {
		t.Errorf("expected just the root entry, got %d", len(entries))
	}
}

func TestDirectorySourceAccessDeniedIsRecoverable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks are meaningless running as root")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(locked, "secret.txt"), 10)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0o755)

	createFile(t, filepath.Join(root, "visible.txt"), 5)

	s := NewDirectorySource(2)
	entries, errs := drain(t, s, root)

	foundAccessDenied := false
	for _, err := range errs {
		if kind, ok := types.KindOf(err); ok && kind == types.KindAccessDenied {
			foundAccessDenied = true
		}
	}
	if !foundAccessDenied {
		t.Error("expected an AccessDenied error for the locked directory")
	}

	foundVisible := false
	for _, e := range entries {
		if e.Name == "visible.txt" {
			foundVisible = true
		}
	}
	if !foundVisible {
		t.Error("expected the scan to continue past the locked subtree")
	}
}

func TestDirectorySourceDoesNotDescendSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(target, "inside.txt"), 10)

	link := filepath.Join(root, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	s := NewDirectorySource(2)
	entries, _ := drain(t, s, root)

	for _, e := range entries {
		if e.Name == "inside.txt" {
			t.Error("did not expect the source to descend through a symlink")
		}
	}
}

func TestDirectorySourceCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		createFile(t, filepath.Join(root, filepath.Join("d", string(rune('a'+i%26))), "f.txt"), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewDirectorySource(2)
	entries, _ := s.Scan(ctx, root)
	count := 0
	for range entries {
		count++
	}
	// No strict bound asserted — cancellation just must not hang or panic.
	_ = count
}
