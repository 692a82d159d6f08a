//go:build !linux

package monitor

import "github.com/pkg/errors"

// startPlatform reports that watching isn't available on this platform.
// Mirrors the teacher's watch_native_unsupported.go: the package still
// builds and Start still returns a clean error instead of the caller
// hitting a missing-symbol build failure on an unsupported GOOS.
func (m *Monitor) startPlatform() error {
	return errors.New("filesystem change monitoring is only supported on linux")
}

func (m *Monitor) stopPlatform() {}

func (m *Monitor) addWatch(path string) (int32, error) {
	return 0, errors.New("filesystem change monitoring is only supported on linux")
}

func (m *Monitor) removeWatch(path string) {}

func (m *Monitor) classifyWatchError(err error) watchErrorClass {
	return watchErrorOther
}
