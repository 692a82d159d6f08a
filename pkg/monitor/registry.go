package monitor

import "sync"

// registry is the Watch Registry: the bidirectional mapping between kernel
// watch descriptors and the absolute paths they watch. Every installed
// directory watch has exactly one entry here, and the Reader, Installer,
// and Applier all go through it rather than tracking descriptors
// themselves.
//
// Grounded on the teacher's internal/third_party/notify and fsnotify's
// backend_inotify.go `watches`/`paths` map pair, which keep the same two
// directions of the same bijection for the same reason: inotify events
// arrive keyed by watch descriptor, but every other component (Installer,
// Applier, exclusion checks) thinks in terms of paths.
type registry struct {
	mu     sync.RWMutex
	byWD   map[int32]string
	byPath map[string]int32
}

func newRegistry() *registry {
	return &registry{
		byWD:   make(map[int32]string),
		byPath: make(map[string]int32),
	}
}

// insert records a new wd<->path pair. It overwrites any previous entry
// under the same watch descriptor or path, which should not happen in
// practice but keeps the map pair internally consistent if it does.
func (r *registry) insert(wd int32, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldPath, ok := r.byWD[wd]; ok {
		delete(r.byPath, oldPath)
	}
	if oldWD, ok := r.byPath[path]; ok {
		delete(r.byWD, oldWD)
	}
	r.byWD[wd] = path
	r.byPath[path] = wd
}

// lookupPath returns the path watched by wd, if any.
func (r *registry) lookupPath(wd int32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.byWD[wd]
	return path, ok
}

// lookupWD returns the watch descriptor for path, if any.
func (r *registry) lookupWD(path string) (int32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wd, ok := r.byPath[path]
	return wd, ok
}

// removeByPath drops the entry for path, returning its watch descriptor so
// the caller can issue the matching inotify_rm_watch. Returns false if path
// was not registered.
func (r *registry) removeByPath(path string) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wd, ok := r.byPath[path]
	if !ok {
		return 0, false
	}
	delete(r.byPath, path)
	delete(r.byWD, wd)
	return wd, true
}

// removeByWD drops the entry for wd, returning its path. Used when the
// kernel has already torn the watch down on its own (IN_IGNORED) and there
// is nothing left to un-watch, only bookkeeping to clear.
func (r *registry) removeByWD(wd int32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.byWD[wd]
	if !ok {
		return "", false
	}
	delete(r.byWD, wd)
	delete(r.byPath, path)
	return path, true
}

// count returns the number of currently installed watches.
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byWD)
}

// reset clears the registry. Used when stopping, since every watch
// descriptor becomes invalid once the inotify file descriptor is closed.
func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byWD = make(map[int32]string)
	r.byPath = make(map[string]int32)
}
