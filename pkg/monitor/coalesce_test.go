package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsearch-go/fsmonitor/pkg/index"
)

func newTestMonitor(t *testing.T, root string) (*Monitor, chan []ChangeEvent) {
	t.Helper()
	idx := index.NewMemoryIndex(root)
	m, err := New([]string{root}, idx, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(m.Close)

	m.SetCoalesceIntervalMs(20)
	results := make(chan []ChangeEvent, 16)
	m.SetCallback(func(events []ChangeEvent) {
		results <- events
	})
	return m, results
}

func waitForBatch(t *testing.T, results chan []ChangeEvent, timeout time.Duration) []ChangeEvent {
	t.Helper()
	select {
	case batch := <-results:
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a coalesced batch")
		return nil
	}
}

func assertNoBatch(t *testing.T, results chan []ChangeEvent, within time.Duration) {
	t.Helper()
	select {
	case batch := <-results:
		t.Fatalf("did not expect a batch, got %+v", batch)
	case <-time.After(within):
	}
}

func TestCoalesceCreateThenDeleteWithinWindowDropsSilently(t *testing.T) {
	root := t.TempDir()
	m, results := newTestMonitor(t, root)

	path := filepath.Join(root, "transient")
	m.pushEvent(rawEvent{path: path, kind: rawCreate})
	m.pushEvent(rawEvent{path: path, kind: rawDelete})

	assertNoBatch(t, results, 100*time.Millisecond)
}

func TestCoalesceFlushAppliesPendingCreate(t *testing.T) {
	root := t.TempDir()
	m, results := newTestMonitor(t, root)

	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m.pushEvent(rawEvent{path: path, kind: rawCreate})
	m.FlushEvents()

	batch := waitForBatch(t, results, time.Second)
	if len(batch) != 1 || batch[0].Path != path || batch[0].Kind != ChangeKindCreated {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestCoalesceBatchingSuppressesTimerUntilFlush(t *testing.T) {
	root := t.TempDir()
	m, results := newTestMonitor(t, root)

	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m.SetBatching(true)
	if !m.IsBatching() {
		t.Fatal("expected IsBatching to be true")
	}
	m.pushEvent(rawEvent{path: path, kind: rawCreate})

	assertNoBatch(t, results, 80*time.Millisecond)

	m.FlushEvents()
	batch := waitForBatch(t, results, time.Second)
	if len(batch) != 1 {
		t.Fatalf("expected one change after flush, got %+v", batch)
	}
}

func TestFlushEventsOnEmptyQueueIsSilentNoop(t *testing.T) {
	root := t.TempDir()
	m, results := newTestMonitor(t, root)

	m.FlushEvents()
	assertNoBatch(t, results, 80*time.Millisecond)
}
