// Package monitor watches a set of directory trees for filesystem changes
// and applies the coalesced result to an external search index, per
// spec.md. It is Linux-only: watching is backed by inotify, and the
// package is usable (its API compiles and fails gracefully) but inert on
// every other platform.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fsearch-go/fsmonitor/pkg/index"
	"github.com/fsearch-go/fsmonitor/pkg/logging"
)

// runState is the Lifecycle & Mode Controller's primary state, per
// spec.md §4.7: STOPPED -> STARTING -> RUNNING, and back to STOPPED on
// Stop or a failed Start. A reader error does not change it.
type runState int

const (
	stateStopped runState = iota
	stateStarting
	stateRunning
)

// watchErrorClass buckets a failed watch install so the Installer can
// decide whether to escalate (sticky watch-limit flag), log-and-skip
// (a node that vanished or became inaccessible since it was listed), or
// just log (anything else unexpected).
type watchErrorClass int

const (
	watchErrorOther watchErrorClass = iota
	watchErrorLimitReached
	watchErrorMissing
)

// ChangeKind classifies a single applied change, as reported to Callback.
type ChangeKind int

const (
	ChangeKindCreated ChangeKind = iota
	ChangeKindDeleted
	ChangeKindModified
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeKindCreated:
		return "created"
	case ChangeKindDeleted:
		return "deleted"
	case ChangeKindModified:
		return "modified"
	default:
		return "unknown"
	}
}

// ChangeEvent is one entry of a coalesced, applied batch handed to
// Callback. It is reported only for paths that actually changed the index;
// a CREATE that turned out idempotent is not reported, and a MODIFY against
// an unindexed regular file is reported as a create (see pkg/monitor
// apply.go).
type ChangeEvent struct {
	Path  string
	IsDir bool
	Kind  ChangeKind
}

// Callback receives one applied, coalesced batch. It runs on the
// monitor's internal scheduler goroutine, serialized with every other
// callback and with the Applier itself.
type Callback func(events []ChangeEvent)

// PrepareCallback is invoked immediately before a batch is applied to the
// index, still on the scheduler goroutine, so a caller can do whatever
// bookkeeping it needs before index mutation begins (e.g. snapshotting UI
// state that is about to go stale).
type PrepareCallback func()

const defaultCoalesceInterval = 1500 * time.Millisecond

// Monitor watches a set of directory trees for changes and applies them to
// an Index. The zero value is not usable; construct one with New.
//
// Locking order, narrowest to widest, mirrors spec.md §5's concurrency
// model: queueMu (the coalescing buffer) is acquired before lifecycleMu
// (start/stop state), which is acquired before the Index's own lock. The
// Watch Registry has its own independent lock and is never held across any
// of the above.
type Monitor struct {
	logger *logging.Logger
	id     string

	policy *exclusionPolicy
	reg    *registry

	lifecycleMu sync.Mutex
	state       runState
	fd          int
	stopping    int32
	readerWG    sync.WaitGroup

	watchLimitReached stickyFlag
	overflowOccurred  stickyFlag

	indexedPaths []string

	queueMu          sync.Mutex
	queueIndex       map[string]*coalescedEvent
	queueOrder       []string
	timer            *time.Timer
	timerArmed       bool
	batching         bool
	coalesceInterval time.Duration

	idxMu sync.Mutex
	idx   index.Index

	sched *scheduler

	callback        Callback
	prepareCallback PrepareCallback
	errorCallback   ErrorCallback
}

// New constructs a Monitor for the given set of root directory trees. The
// index is retained with an added reference (via idx.Ref()) for the
// monitor's lifetime; logger may be nil, in which case the monitor logs
// through logging.RootLogger.
func New(indexedPaths []string, idx index.Index, logger *logging.Logger) (*Monitor, error) {
	if len(indexedPaths) == 0 {
		return nil, errors.New("at least one indexed path is required")
	}
	if idx == nil {
		return nil, errors.New("an index is required")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate monitor id")
	}

	if logger == nil {
		logger = logging.RootLogger
	}
	logger = logger.Sublogger("monitor").Sublogger(id.String()[:8])

	idx.Ref()

	m := &Monitor{
		logger:           logger,
		id:               id.String(),
		policy:           newExclusionPolicy(),
		reg:              newRegistry(),
		fd:               -1,
		indexedPaths:     append([]string(nil), indexedPaths...),
		queueIndex:       make(map[string]*coalescedEvent),
		coalesceInterval: defaultCoalesceInterval,
		idx:              idx,
		sched:            newScheduler(),
	}
	return m, nil
}

// Start installs watches over every configured tree and begins reading raw
// kernel events. It is a no-op, returning nil, if the monitor is already
// starting or running.
func (m *Monitor) Start() error {
	m.lifecycleMu.Lock()
	if m.state != stateStopped {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.state = stateStarting
	m.lifecycleMu.Unlock()

	m.watchLimitReached.clear()
	m.overflowOccurred.clear()
	m.reg.reset()

	if err := m.startPlatform(); err != nil {
		m.lifecycleMu.Lock()
		m.state = stateStopped
		m.lifecycleMu.Unlock()
		return err
	}

	for _, root := range m.indexedPaths {
		m.installRecursive(root)
	}

	m.lifecycleMu.Lock()
	m.state = stateRunning
	m.lifecycleMu.Unlock()
	m.logger.Info("monitor started")
	return nil
}

// Stop halts event reading, tears down every installed watch, and discards
// anything still queued in the coalescing buffer without applying it. It
// is a no-op if the monitor is already stopped.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	if m.state == stateStopped {
		m.lifecycleMu.Unlock()
		return
	}
	m.lifecycleMu.Unlock()

	m.stopPlatform()

	m.queueMu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerArmed = false
	m.queueIndex = make(map[string]*coalescedEvent)
	m.queueOrder = nil
	m.queueMu.Unlock()

	m.reg.reset()

	m.lifecycleMu.Lock()
	m.state = stateStopped
	m.fd = -1
	m.lifecycleMu.Unlock()
	m.logger.Info("monitor stopped")
}

// Close releases the monitor's reference on its index. It stops the
// monitor first if it is still running.
func (m *Monitor) Close() {
	m.Stop()
	m.sched.stop()
	m.idxMu.Lock()
	idx := m.idx
	m.idx = nil
	m.idxMu.Unlock()
	if idx != nil {
		idx.Unref()
	}
}

// IsRunning reports whether the monitor is currently running (not starting
// and not stopped).
func (m *Monitor) IsRunning() bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.state == stateRunning
}

// GetNumWatches returns the number of watches currently installed.
func (m *Monitor) GetNumWatches() int {
	return m.reg.count()
}

// WatchLimitReached reports whether the kernel's per-user watch limit was
// hit at any point during the current run. The flag is sticky: once set,
// it stays set until the next Start.
func (m *Monitor) WatchLimitReached() bool {
	return m.watchLimitReached.isSet()
}

// OverflowOccurred reports whether the kernel ever reported a queue
// overflow (events dropped) during the current run. Sticky, like
// WatchLimitReached.
func (m *Monitor) OverflowOccurred() bool {
	return m.overflowOccurred.isSet()
}

// SetCoalesceIntervalMs sets the bounded maximum delay, in milliseconds,
// between a path's first raw event in a window and that window's flush.
// Zero means "use the default" (1500ms), per spec.md §6.
func (m *Monitor) SetCoalesceIntervalMs(ms uint32) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if ms == 0 {
		m.coalesceInterval = defaultCoalesceInterval
		return
	}
	m.coalesceInterval = time.Duration(ms) * time.Millisecond
}

// SetExcludedPaths replaces the set of explicitly excluded subtrees, given
// as a map from absolute path to whether the exclusion is currently
// enabled.
func (m *Monitor) SetExcludedPaths(paths map[string]bool) {
	m.policy.setExcludedPaths(paths)
}

// SetExcludePatterns replaces the set of shell-style glob patterns matched
// against bare entry names.
func (m *Monitor) SetExcludePatterns(patterns []string) {
	m.policy.setPatterns(patterns)
}

// SetExcludeHidden enables or disables excluding dotfiles/dot-directories.
func (m *Monitor) SetExcludeHidden(enabled bool) {
	m.policy.setExcludeHidden(enabled)
}

// SetCallback sets the callback invoked with each applied, coalesced
// batch.
func (m *Monitor) SetCallback(cb Callback) {
	m.callback = cb
}

// SetPrepareCallback sets the callback invoked just before a batch is
// applied.
func (m *Monitor) SetPrepareCallback(cb PrepareCallback) {
	m.prepareCallback = cb
}

// SetErrorCallback sets the callback invoked on a queue overflow or a
// reader crash.
func (m *Monitor) SetErrorCallback(cb ErrorCallback) {
	m.errorCallback = cb
}

// SetDatabase rebinds the monitor to a new Index, releasing its reference
// on the previous one. The new index gains a reference for the monitor's
// lifetime. Safe to call whether or not the monitor is running.
func (m *Monitor) SetDatabase(idx index.Index) {
	if idx != nil {
		idx.Ref()
	}
	m.idxMu.Lock()
	old := m.idx
	m.idx = idx
	m.idxMu.Unlock()
	if old != nil {
		old.Unref()
	}
}
