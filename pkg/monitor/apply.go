package monitor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fsearch-go/fsmonitor/pkg/index"
)

// applyBatch is the Applier: it takes one drained, coalesced batch and
// mutates the index under its lock, per spec.md §4.6. It always runs on
// the scheduler goroutine (see coalesce.go's applyAndNotify), so it never
// races with another batch. The index handle is read once under idxMu, so
// a concurrent SetDatabase takes effect from the next batch on.
func (m *Monitor) applyBatch(batch []coalescedEvent) {
	if m.prepareCallback != nil {
		m.prepareCallback()
	}

	m.idxMu.Lock()
	idx := m.idx
	m.idxMu.Unlock()
	if idx == nil {
		return
	}

	idx.Lock()
	var results []ChangeEvent
	for _, ev := range batch {
		m.applyOne(idx, ev, &results)
	}
	idx.Unlock()

	if m.callback != nil && len(results) > 0 {
		m.callback(results)
	}
}

func (m *Monitor) applyOne(idx index.Index, ev coalescedEvent, results *[]ChangeEvent) {
	switch ev.state {
	case stateCreated:
		m.applyCreated(idx, ev, results)
	case stateDeleted:
		m.applyDeleted(idx, ev, results)
	case stateModified:
		m.applyModified(idx, ev, results)
	}
}

// applyCreated handles a folded CREATED path. It is idempotent (an entry
// already present at the path is left alone) and skips silently if the
// entry's parent isn't itself indexed yet — which can happen when a
// coalescing window folds a rapid create-inside-a-not-yet-applied-new-
// folder sequence. For a new folder, it installs watches recursively over
// whatever the new subtree already contains (the Reader has usually
// already done this the moment the raw CREATE arrived — see
// reader_linux.go's handleRawEvent — so this is normally a no-op repeat),
// then lists the folder's direct entries and inserts each non-excluded,
// non-directory child, matching fsearch_monitor.c's apply_changes_to_db.
// Nested subdirectories' own contents are not walked here; they arrive
// through their own later CREATE events.
func (m *Monitor) applyCreated(idx index.Index, ev coalescedEvent, results *[]ChangeEvent) {
	if idx.FindEntryByPath(ev.path) != nil {
		return
	}

	parentPath := filepath.Dir(ev.path)
	parent := idx.FindFolderByPath(parentPath)
	if parent == nil {
		m.logger.Debugf("skipping create, parent not indexed: %s", ev.path)
		return
	}

	info, err := statPath(ev.path)
	if err != nil {
		m.logger.Debugf("skipping create, stat failed for %s: %v", ev.path, err)
		return
	}

	name := filepath.Base(ev.path)
	if ev.isDir {
		if _, err := idx.AddFolder(parentPath, name, info.modTime); err != nil {
			m.logger.Warn(err)
			return
		}
		m.installRecursive(ev.path)
		*results = append(*results, ChangeEvent{Path: ev.path, IsDir: true, Kind: ChangeKindCreated})
		m.insertDirectChildren(idx, ev.path, results)
	} else {
		if err := idx.AddFile(parentPath, name, info.size, info.modTime); err != nil {
			m.logger.Warn(err)
			return
		}
		m.logger.Tracef("indexed new file %s (%s)", ev.path, humanize.Bytes(uint64(info.size)))
		*results = append(*results, ChangeEvent{Path: ev.path, Kind: ChangeKindCreated})
	}
}

// insertDirectChildren lists folderPath's immediate entries and inserts
// each non-excluded, non-directory child into the index, matching
// fsearch_monitor.c:452-475: a newly created folder's existing file
// contents are indexed right away rather than waiting on their own CREATE
// events, since a folder that materializes all at once (a move or an
// archive extraction, say) never generates individual create events for
// what's already inside it.
func (m *Monitor) insertDirectChildren(idx index.Index, folderPath string, results *[]ChangeEvent) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		m.logger.Debugf("could not list directory %s: %v", folderPath, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if m.policy.excludeName(name) {
			continue
		}
		childPath := filepath.Join(folderPath, name)
		if m.policy.excludePath(childPath) {
			continue
		}
		if idx.FindEntryByPath(childPath) != nil {
			continue
		}
		info, err := statPath(childPath)
		if err != nil {
			continue
		}
		if err := idx.AddFile(folderPath, name, info.size, info.modTime); err != nil {
			m.logger.Warn(err)
			continue
		}
		*results = append(*results, ChangeEvent{Path: childPath, Kind: ChangeKindCreated})
	}
}

// applyDeleted handles a folded DELETED path. A folder delete also tears
// down that folder's own watch; watches on subfolders beneath it are not
// removed here (their registry entries are cleared when the kernel's
// IN_IGNORED for each of them reaches handleRawEvent). A path already
// absent from the index is a silent no-op.
func (m *Monitor) applyDeleted(idx index.Index, ev coalescedEvent, results *[]ChangeEvent) {
	entry := idx.FindEntryByPath(ev.path)
	if entry == nil {
		return
	}

	isFolder := entry.IsFolder()
	if isFolder {
		m.removeWatch(ev.path)
		if err := idx.RemoveFolder(entry); err != nil {
			m.logger.Warn(err)
			return
		}
	} else {
		if err := idx.RemoveFile(entry); err != nil {
			m.logger.Warn(err)
			return
		}
	}
	*results = append(*results, ChangeEvent{Path: ev.path, IsDir: isFolder, Kind: ChangeKindDeleted})
}

// applyModified handles a folded MODIFIED path. Folder modification times
// aren't meaningful to the index, so folders are left alone. A path with
// no existing index entry is treated as a late CREATE (see
// applyLateCreate) rather than dropped outright.
func (m *Monitor) applyModified(idx index.Index, ev coalescedEvent, results *[]ChangeEvent) {
	entry := idx.FindEntryByPath(ev.path)
	if entry == nil {
		m.applyLateCreate(idx, ev, results)
		return
	}
	if entry.IsFolder() {
		return
	}

	info, err := statPath(ev.path)
	if err != nil {
		m.logger.Debugf("skipping modify, stat failed for %s: %v", ev.path, err)
		return
	}
	if err := idx.UpdateFile(entry, info.size, info.modTime); err != nil {
		m.logger.Warn(err)
		return
	}
	*results = append(*results, ChangeEvent{Path: ev.path, Kind: ChangeKindModified})
}

// applyLateCreate handles a MODIFIED path with no existing index entry.
// This happens when a file's own CREATE was missed or folded away by an
// earlier window (for instance, one that saw CREATE then DELETE and
// dropped both, with the file actually having been recreated moments
// later under a fresh MODIFY-only window): if the path now stats as a
// regular file and its parent folder is indexed, it is inserted as
// though this were its creation. Mirrors fsearch_monitor.c:511-524.
func (m *Monitor) applyLateCreate(idx index.Index, ev coalescedEvent, results *[]ChangeEvent) {
	if ev.isDir {
		return
	}

	fi, err := os.Lstat(ev.path)
	if err != nil || !fi.Mode().IsRegular() {
		return
	}
	info := statInfo{size: fi.Size(), modTime: fi.ModTime()}

	parentPath := filepath.Dir(ev.path)
	parent := idx.FindFolderByPath(parentPath)
	if parent == nil {
		return
	}

	name := filepath.Base(ev.path)
	if err := idx.AddFile(parentPath, name, info.size, info.modTime); err != nil {
		m.logger.Warn(err)
		return
	}
	*results = append(*results, ChangeEvent{Path: ev.path, Kind: ChangeKindCreated})
}

type statInfo struct {
	size    int64
	modTime time.Time
}

func statPath(path string) (statInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return statInfo{}, err
	}
	return statInfo{size: fi.Size(), modTime: fi.ModTime()}, nil
}
