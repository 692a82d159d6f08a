package monitor

import "sync"

// scheduler is a small cooperative, single-goroutine task queue. It models
// the "UI-side" execution context from spec.md §5: the monitor's dedicated
// Reader goroutine produces coalesced batches, but everything the caller
// observes — the change callback, the prepare callback, error
// notifications, and the Applier's own index mutation — runs serialized on
// this one goroutine, never concurrently with itself and never on the
// Reader goroutine.
//
// A caller embedding the monitor in something that already has its own
// single-threaded event loop (a GUI main loop, for instance) can still rely
// on this type for the monitor's internal ordering guarantees even though
// it does not integrate with that outer loop directly; see DESIGN.md for
// the reasoning.
type scheduler struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

func newScheduler() *scheduler {
	s := &scheduler{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.done:
			// Drain whatever is already queued before exiting so a Close()
			// that races with a final flush still delivers it.
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// post enqueues f to run on the scheduler goroutine. It is safe to call
// from any goroutine, including before the scheduler has been started to
// run any prior task.
func (s *scheduler) post(f func()) {
	select {
	case s.tasks <- f:
	case <-s.done:
	}
}

// stop signals the scheduler to drain and exit, then waits for it to do so.
func (s *scheduler) stop() {
	close(s.done)
	s.wg.Wait()
}
