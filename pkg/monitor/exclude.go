package monitor

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// exclusionPolicy is the Exclusion Policy: it decides which names and
// subtrees the Watch Installer and Raw Event Reader should ignore, per
// spec.md §4.2. It is consulted before installing a watch on a directory,
// and before folding a raw event into the coalescing buffer.
//
// Grounded on fsearch_monitor.c's should_exclude_name/is_path_excluded
// pair, with glob matching delegated to doublestar (as the teacher's
// pkg/synchronization/core/ignore/mutagen.ignorer does for its own
// shell-style ignore patterns) instead of a hand-rolled matcher.
type exclusionPolicy struct {
	mu            sync.RWMutex
	excludeHidden bool
	patterns      []string
	excludedPaths map[string]bool // absolute path -> enabled
}

func newExclusionPolicy() *exclusionPolicy {
	return &exclusionPolicy{
		excludedPaths: make(map[string]bool),
	}
}

func (p *exclusionPolicy) setExcludeHidden(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.excludeHidden = enabled
}

func (p *exclusionPolicy) setPatterns(patterns []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = append([]string(nil), patterns...)
}

func (p *exclusionPolicy) setExcludedPaths(paths map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.excludedPaths = make(map[string]bool, len(paths))
	for path, enabled := range paths {
		p.excludedPaths[path] = enabled
	}
}

// excludeName reports whether a bare entry name (no path separators) should
// be excluded on its own merits: a leading dot while hidden-exclusion is on,
// or a match against any configured glob pattern.
func (p *exclusionPolicy) excludeName(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.excludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range p.patterns {
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// excludePath reports whether fullPath falls under a subtree the caller has
// explicitly excluded. Unlike excludeName, this is a path-prefix check
// against the configured excluded-paths list, not a glob match, and is
// independent of excludeHidden/patterns.
func (p *exclusionPolicy) excludePath(fullPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for excluded, enabled := range p.excludedPaths {
		if !enabled {
			continue
		}
		if fullPath == excluded || strings.HasPrefix(fullPath, excluded+"/") {
			return true
		}
	}
	return false
}
