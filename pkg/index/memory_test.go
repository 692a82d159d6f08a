package index

import (
	"testing"
	"time"
)

func TestMemoryIndexAddFindRemoveFile(t *testing.T) {
	idx := NewMemoryIndex("/root")
	idx.Lock()
	defer idx.Unlock()

	mtime := time.Unix(1000, 0)
	if err := idx.AddFile("/root", "a.txt", 42, mtime); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	entry := idx.FindEntryByPath("/root/a.txt")
	if entry == nil {
		t.Fatal("expected entry to be found")
	}
	if entry.Kind != KindFile || entry.Size != 42 || !entry.ModTime.Equal(mtime) {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := idx.RemoveFile(entry); err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}
	if idx.FindEntryByPath("/root/a.txt") != nil {
		t.Fatal("expected entry to be gone after remove")
	}
}

func TestMemoryIndexAddFolderAndNestedFile(t *testing.T) {
	idx := NewMemoryIndex("/root")
	idx.Lock()
	defer idx.Unlock()

	mtime := time.Unix(2000, 0)
	folder, err := idx.AddFolder("/root", "sub", mtime)
	if err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	if !idx.EntryIsFolder(folder) {
		t.Fatal("expected folder entry")
	}

	if err := idx.AddFile("/root/sub", "x", 1, mtime); err != nil {
		t.Fatalf("AddFile in subfolder failed: %v", err)
	}
	if idx.FindEntryByPath("/root/sub/x") == nil {
		t.Fatal("expected nested file to be found")
	}

	// Removing the folder should detach it (and its contents) from its
	// parent in one step, mirroring the Applier's folder-delete behavior.
	if err := idx.RemoveFolder(folder); err != nil {
		t.Fatalf("RemoveFolder failed: %v", err)
	}
	if idx.FindEntryByPath("/root/sub") != nil {
		t.Fatal("expected folder to be gone after remove")
	}
}

func TestMemoryIndexDuplicateAddFails(t *testing.T) {
	idx := NewMemoryIndex("/root")
	idx.Lock()
	defer idx.Unlock()

	mtime := time.Unix(1, 0)
	if err := idx.AddFile("/root", "a.txt", 1, mtime); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := idx.AddFile("/root", "a.txt", 1, mtime); err == nil {
		t.Fatal("expected duplicate AddFile to fail")
	}
}

func TestMemoryIndexRefCounting(t *testing.T) {
	idx := NewMemoryIndex("/root")
	if got := idx.RefCount(); got != 1 {
		t.Fatalf("expected initial ref count 1, got %d", got)
	}
	idx.Ref()
	if got := idx.RefCount(); got != 2 {
		t.Fatalf("expected ref count 2 after Ref, got %d", got)
	}
	idx.Unref()
	if got := idx.RefCount(); got != 1 {
		t.Fatalf("expected ref count 1 after Unref, got %d", got)
	}
}

func TestMemoryIndexMissingParentFails(t *testing.T) {
	idx := NewMemoryIndex("/root")
	idx.Lock()
	defer idx.Unlock()

	if err := idx.AddFile("/root/missing", "a.txt", 1, time.Unix(1, 0)); err == nil {
		t.Fatal("expected AddFile under missing parent to fail")
	}
}
