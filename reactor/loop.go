// Package reactor implements the Service/IOLoop machinery: a small pool of
// worker goroutines driving one or more event loops, onto which Session,
// Server, and Client post their I/O continuations.
package reactor

import "fmt"

import "github.com/eapache/queue"

import "sync"

type task func()

// IOLoop is a FIFO task queue: Post is safe from any goroutine, and tasks
// are taken off the queue in FIFO order by whichever goroutine is driving
// the loop via Run or PollOnce. With one driving goroutine the tasks run one
// at a time; when several goroutines drive the same loop (the Service's
// strand mode) tasks taken by different goroutines can run at the same time.
// Session, Server, and Client bind to one *IOLoop (obtained from
// Service.GetIO) for their entire lifetime, so with a single driver every
// callback they fire is serialized with respect to their own other callbacks.
type IOLoop struct {
	mu     sync.Mutex
	tasks  *queue.Queue
	wake   chan struct{}
	closed bool
}

func newIOLoop() *IOLoop {
	return &IOLoop{tasks: queue.New(), wake: make(chan struct{}, 1)}
}

// Post enqueues t for later execution on this loop. Post never blocks and
// never runs t inline, even if the calling goroutine is the one currently
// driving the loop — callers that already know they're on the loop should
// simply call their handler directly instead of posting to themselves.
func (l *IOLoop) Post(t task) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks.Add(t)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *IOLoop) pop() (task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks.Length() == 0 {
		return nil, false
	}
	return l.tasks.Remove().(task), true
}

func (l *IOLoop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Stop marks the loop closed. Any task already queued still runs; Run and
// PollOnce return once the queue drains empty. Stop itself never blocks, so
// it is always safe to call from inside a task running on the loop it stops.
func (l *IOLoop) Stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until Stop has been called and the queue is empty,
// blocking between batches of work instead of busy-polling. This is the
// loop driver used whenever the owning Service was started non-polling.
func (l *IOLoop) Run(onErr func(error)) {
	for {
		closed := l.isClosed()
		t, ok := l.pop()
		if ok {
			runTask(t, onErr)
			continue
		}
		if closed {
			// Hand the wake-up on so every other goroutine driving this
			// loop also sees the close and returns.
			select {
			case l.wake <- struct{}{}:
			default:
			}
			return
		}
		<-l.wake
	}
}

// PollOnce runs at most one pending task without blocking, returning false
// when the queue was empty. The polling Service mode calls this in a tight
// loop, firing on_idle between empty polls instead of parking the thread.
func (l *IOLoop) PollOnce(onErr func(error)) bool {
	t, ok := l.pop()
	if !ok {
		return false
	}
	runTask(t, onErr)
	return true
}

func runTask(t task, onErr func(error)) {
	defer func() {
		if r := recover(); r != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reactor: task panicked: %v", r))
			}
		}
	}()
	t()
}
