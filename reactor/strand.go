package reactor

import "sync"

// Poster is the minimal scheduling primitive a Strand wraps. *IOLoop
// satisfies it; tests substitute a fake to observe ordering directly.
type Poster interface {
	Post(task)
}

// Strand serializes a group of tasks across an underlying Poster so that,
// even when that Poster is itself driven by several worker goroutines, at
// most one strand-submitted task ever runs at a time and tasks run in
// submission order. This is the classic single-writer serializer pattern —
// a pending queue plus a running flag — rather than anything resembling a
// goroutine-identity check.
type Strand struct {
	next Poster

	mu      sync.Mutex
	pending []task
	running bool
}

// NewStrand wraps next so that tasks posted through the returned Strand run
// serialized with respect to each other, however many threads drive next.
func NewStrand(next Poster) *Strand {
	return &Strand{next: next}
}

// Post enqueues t for strand-serialized execution.
func (s *Strand) Post(t task) {
	s.mu.Lock()
	if s.running {
		s.pending = append(s.pending, t)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.next.Post(func() { s.run(t) })
}

func (s *Strand) run(t task) {
	t()
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.running = false
		s.mu.Unlock()
		return
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	s.next.Post(func() { s.run(next) })
}
