package monitor

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// installRecursive is the Watch Installer: it installs a watch on root
// and, depth-first, on every subdirectory beneath it that the exclusion
// policy lets through, per spec.md §4.3. It is used both for each of the
// monitor's configured root trees at Start and, by the Applier, for a
// newly created directory discovered mid-run.
//
// Grounded on fsearch_monitor.c's add_watch/add_watches_recursive pair:
// same early-exit once the watch limit is hit, same per-node tolerance of
// a vanished or inaccessible entry rather than aborting the whole walk.
func (m *Monitor) installRecursive(root string) {
	if m.watchLimitReached.isSet() {
		return
	}
	if m.policy.excludePath(root) {
		return
	}
	if _, err := m.addWatch(root); err != nil {
		m.handleWatchError(root, err)
		return
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		m.logger.Debugf("could not list directory %s: %v", root, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if m.policy.excludeName(name) {
			continue
		}
		child := filepath.Join(root, name)
		if m.policy.excludePath(child) {
			continue
		}
		m.installRecursive(child)
	}
}

// handleWatchError classifies a failed watch install and reacts
// accordingly: a kernel watch-limit error latches the sticky
// watchLimitReached flag (logged once), a vanished-or-inaccessible node is
// skipped silently, and anything else is logged as a warning.
func (m *Monitor) handleWatchError(path string, err error) {
	switch m.classifyWatchError(err) {
	case watchErrorLimitReached:
		if !m.watchLimitReached.isSet() {
			m.logger.Warn(errors.Wrapf(err, "watch limit reached installing %s", path))
		}
		m.watchLimitReached.set()
	case watchErrorMissing:
		// Entry vanished or became inaccessible between directory listing
		// and watch install; nothing to do.
	default:
		m.logger.Warn(errors.Wrapf(err, "failed to install watch on %s", path))
	}
}
