//go:build linux

package monitor

import (
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// watchMask is applied to every installed watch. IN_DONT_FOLLOW keeps a
// watched directory from silently retargeting onto whatever a symlink in
// its place starts pointing at; IN_EXCL_UNLINK keeps events for an
// already-unlinked-but-still-open file from continuing to arrive;
// IN_ONLYDIR guards against a race where the path stopped being a
// directory between the Installer's check and the syscall.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DONT_FOLLOW | unix.IN_EXCL_UNLINK | unix.IN_ONLYDIR

const readBufferSize = 64 * 1024

// startPlatform opens the inotify file descriptor and starts the Raw Event
// Reader's background goroutine. Grounded on fsnotify's backend_inotify.go
// NewWatcher (same InotifyInit1 flags) and fsearch_monitor.c's
// watch_thread_func (same poll-then-read loop shape).
func (m *Monitor) startPlatform() error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return errors.Wrap(err, "inotify_init1 failed")
	}
	atomic.StoreInt32(&m.stopping, 0)
	m.fd = fd
	m.readerWG.Add(1)
	go m.readLoop()
	return nil
}

// stopPlatform signals the reader to stop, closes the inotify descriptor
// (which unblocks any pending poll/read with EBADF), and waits for the
// reader goroutine to exit.
func (m *Monitor) stopPlatform() {
	atomic.StoreInt32(&m.stopping, 1)
	if m.fd >= 0 {
		unix.Close(m.fd)
	}
	m.readerWG.Wait()
	m.fd = -1
}

// addWatch installs a watch on path and records it in the Watch Registry.
func (m *Monitor) addWatch(path string) (int32, error) {
	wd, err := unix.InotifyAddWatch(m.fd, path, watchMask)
	if err != nil {
		return 0, err
	}
	m.reg.insert(int32(wd), path)
	return int32(wd), nil
}

// removeWatch tears down the watch on path, if one is installed. Errors
// from inotify_rm_watch are ignored: the kernel may have already torn the
// watch down itself (IN_IGNORED) by the time the Applier gets here.
func (m *Monitor) removeWatch(path string) {
	wd, ok := m.reg.removeByPath(path)
	if !ok {
		return
	}
	unix.InotifyRmWatch(m.fd, uint32(wd))
}

func (m *Monitor) classifyWatchError(err error) watchErrorClass {
	switch {
	case errors.Is(err, unix.ENOSPC):
		return watchErrorLimitReached
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.EACCES), errors.Is(err, unix.ENOTDIR):
		return watchErrorMissing
	default:
		return watchErrorOther
	}
}

// readLoop is the Raw Event Reader's dedicated background goroutine. It
// polls the inotify descriptor with a short timeout so it can notice
// stopPlatform's close promptly, reads whatever is available into a fixed
// buffer, and hands each parsed record to handleRawEvent.
func (m *Monitor) readLoop() {
	defer m.readerWG.Done()

	buf := make([]byte, readBufferSize)
	pfd := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}

	for {
		n, err := unix.Poll(pfd, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if atomic.LoadInt32(&m.stopping) != 0 {
				return
			}
			m.handleReaderCrash(errors.Wrap(err, "poll on inotify descriptor failed"))
			return
		}
		if n == 0 || pfd[0].Revents&unix.POLLIN == 0 {
			if atomic.LoadInt32(&m.stopping) != 0 {
				return
			}
			continue
		}

		count, err := unix.Read(m.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if atomic.LoadInt32(&m.stopping) != 0 {
				return
			}
			m.handleReaderCrash(errors.Wrap(err, "read from inotify descriptor failed"))
			return
		}
		if count == 0 {
			return
		}
		m.processRaw(buf[:count])
	}
}

// processRaw parses a buffer of raw inotify_event records, in the layout
// documented by inotify(7): a fixed unix.InotifyEvent header immediately
// followed by Len bytes of NUL-padded name, possibly absent.
func (m *Monitor) processRaw(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		offset += unix.SizeofInotifyEvent

		var name string
		if nameLen > 0 {
			nameBytes := buf[offset : offset+nameLen]
			name = string(nameBytes[:cStringLen(nameBytes)])
		}
		offset += nameLen

		m.handleRawEvent(int32(raw.Wd), uint32(raw.Mask), name)
	}
}

func cStringLen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// handleRawEvent translates one parsed inotify record into the monitor's
// internal representation and folds it into the coalescing buffer,
// applying the Exclusion Policy first.
func (m *Monitor) handleRawEvent(wd int32, mask uint32, name string) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		m.handleOverflow()
		return
	}

	dir, ok := m.reg.lookupPath(wd)
	if mask&unix.IN_IGNORED != 0 {
		m.reg.removeByWD(wd)
		return
	}
	if !ok {
		// Stale watch descriptor: we've already processed this watch's
		// teardown (or never knew about it). Drop the event silently
		// rather than guessing at a path.
		return
	}

	if name != "" && m.policy.excludeName(name) {
		return
	}

	fullPath := dir
	if name != "" {
		fullPath = filepath.Join(dir, name)
	}
	if m.policy.excludePath(fullPath) {
		return
	}

	var kind rawKind
	switch {
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		kind = rawCreate
	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		kind = rawDelete
	case mask&unix.IN_MODIFY != 0:
		kind = rawModify
	default:
		return
	}

	isDir := mask&unix.IN_ISDIR != 0
	if isDir && kind == rawCreate {
		// Install watches on the new subtree immediately, not when the
		// Applier eventually processes this window's CREATED folder: a
		// file created inside it before the window closes would
		// otherwise arrive with no watch in place to report it. Mirrors
		// fsearch_monitor.c's watch_thread_func, which calls
		// add_watches_recursive as soon as the create event is seen.
		m.installRecursive(fullPath)
	}

	m.pushEvent(rawEvent{path: fullPath, isDir: isDir, kind: kind})
}

// handleOverflow marks the sticky overflow flag and reports it through the
// error callback. It bypasses the coalescing buffer entirely: there is
// nothing path-specific to fold, since the kernel has already told us it
// dropped information.
func (m *Monitor) handleOverflow() {
	m.overflowOccurred.set()
	m.logger.Warn(errors.New("inotify queue overflow: one or more events were dropped"))
	if m.errorCallback != nil {
		m.sched.post(func() {
			m.errorCallback(ErrorQueueOverflow)
		})
	}
}

func (m *Monitor) handleReaderCrash(err error) {
	m.logger.Error(err)
	if m.errorCallback != nil {
		m.sched.post(func() {
			m.errorCallback(ErrorThreadCrashed)
		})
	}
}
