package monitor

import "sync/atomic"

// stickyFlag tracks whether a one-way condition has occurred. It is safe for
// concurrent use and its zero value is unmarked. It backs the monitor's
// sticky runtime flags (spec.md §3's watchLimitReached and overflowOccurred,
// which are defined with release/acquire semantics and never reset for the
// lifetime of a single run).
//
// Adapted from the teacher's pkg/state.Marker: same atomic.Bool-backed
// idempotent Mark/Marked pair, renamed and folded directly into this package
// since the rest of pkg/state (Tracker, TrackingLock, the resetting
// Coalescer) has no analogue in this spec and would be unused abstraction.
type stickyFlag struct {
	marked atomic.Bool
}

// set idempotently marks the flag.
func (f *stickyFlag) set() {
	f.marked.Store(true)
}

// isSet reports whether the flag has been marked.
func (f *stickyFlag) isSet() bool {
	return f.marked.Load()
}

// clear resets the flag. Used only when starting a fresh run.
func (f *stickyFlag) clear() {
	f.marked.Store(false)
}
