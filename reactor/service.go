package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/swiftcore/netio/control"
)

// Hooks are the Service-level lifecycle callbacks: OnThreadInit/
// OnThreadCleanup fire on every worker goroutine's entry and exit,
// OnStarted/OnStopped bracket the whole Service's run, OnIdle fires between
// empty polls in polling mode, and OnErr reports a task that panicked (any
// other failure is the concern of the component that posted the task, not
// the reactor).
type Hooks struct {
	OnThreadInit    func()
	OnThreadCleanup func()
	OnStarted       func()
	OnStopped       func()
	OnIdle          func()
	OnErr           func(error)
}

// Config selects one of three threading modes:
//   - Threads == 0: a single loop is created but not driven by the Service;
//     the caller must drive it by calling Service.GetIO().PollOnce/Run
//     itself.
//   - Threads >= 1, NeedsStrand == false: Threads loops are created, one
//     per worker goroutine, and GetIO round-robins across them. This is the
//     "N threads, N loops" mode — callbacks bound to different loops can run
//     concurrently with each other.
//   - Threads >= 1, NeedsStrand == true: a single loop is shared by all
//     Threads worker goroutines, and every task posted through the Service
//     itself is routed through an internal Strand so that, despite several
//     threads being available to run it, work still executes one task at a
//     time in submission order.
type Config struct {
	Threads     int
	NeedsStrand bool
	// Logger receives internal diagnostics (task panics). Nil disables
	// logging entirely.
	Logger *zerolog.Logger
}

// DefaultConfig returns a single-threaded, non-strand, silent configuration.
func DefaultConfig() Config {
	return Config{Threads: 1}
}

// Service is the reactor: it owns one or more IOLoops and the worker
// goroutines that drive them. Session, Server, and Client each bind to a
// loop obtained from GetIO and never touch the Service's threading mode
// directly.
type Service struct {
	cfg    Config
	hooks  Hooks
	logger zerolog.Logger

	mu     sync.Mutex
	loops  []*IOLoop
	strand *Strand
	cursor uint64

	started atomic.Bool
	polling atomic.Bool
	wg      sync.WaitGroup
}

// New constructs a Service in its initial, unstarted state. No loops exist
// yet — they're created lazily by Start so that Restart can cleanly discard
// and rebuild them.
func New(cfg Config, hooks Hooks) *Service {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{cfg: cfg, hooks: hooks, logger: logger}
}

func (s *Service) ensureLoops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loops) > 0 {
		return
	}
	if s.cfg.NeedsStrand || s.cfg.Threads <= 1 {
		loop := newIOLoop()
		s.loops = []*IOLoop{loop}
		if s.cfg.NeedsStrand {
			s.strand = NewStrand(loop)
		}
		return
	}
	s.loops = make([]*IOLoop, s.cfg.Threads)
	for i := range s.loops {
		s.loops[i] = newIOLoop()
	}
}

// GetIO returns the loop a new Session/Server/Client should bind to,
// round-robining across loops in "N threads, N loops" mode and returning
// the single shared loop otherwise.
func (s *Service) GetIO() *IOLoop {
	s.ensureLoops()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.loops)
	if n == 1 {
		return s.loops[0]
	}
	idx := s.cursor % uint64(n)
	s.cursor++
	return s.loops[idx]
}

func (s *Service) primary() *IOLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loops[0]
}

// Post schedules t for later execution, through the strand when the
// Service's mode requires one.
func (s *Service) Post(t func()) {
	s.ensureLoops()
	s.mu.Lock()
	strand := s.strand
	s.mu.Unlock()
	if strand != nil {
		strand.Post(t)
		return
	}
	s.primary().Post(t)
}

// Dispatch schedules t for later execution, identically to Post. The
// reactor itself never runs a caller's task inline: a call site that knows
// it is already executing on its bound loop should simply call its handler
// directly rather than going through Dispatch at all — running inline is a
// property of the call site, not something the Service can detect from the
// caller's goroutine.
func (s *Service) Dispatch(t func()) {
	s.Post(t)
}

// Start brings up the Service's worker goroutines. polling selects between
// the blocking Run driver (false) and the busy PollOnce/OnIdle driver
// (true). Starting an already-started Service is a programming error and
// panics rather than returning a recoverable error.
func (s *Service) Start(polling bool) {
	if !s.started.CompareAndSwap(false, true) {
		panic("reactor: Service.Start called on an already-started service")
	}
	s.polling.Store(polling)
	s.ensureLoops()
	s.Post(func() {
		if s.hooks.OnStarted != nil {
			s.hooks.OnStarted()
		}
	})
	if s.cfg.Threads <= 0 {
		return
	}
	for i := 0; i < s.cfg.Threads; i++ {
		loop := s.workerLoop(i)
		s.wg.Add(1)
		go s.runWorker(loop)
	}
}

func (s *Service) workerLoop(i int) *IOLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loops) == 1 {
		return s.loops[0]
	}
	return s.loops[i]
}

func (s *Service) runWorker(loop *IOLoop) {
	defer s.wg.Done()
	if s.hooks.OnThreadInit != nil {
		s.hooks.OnThreadInit()
	}
	if s.hooks.OnThreadCleanup != nil {
		defer s.hooks.OnThreadCleanup()
	}
	onErr := func(err error) {
		s.logger.Error().Err(err).Msg("reactor: task failed")
		if s.hooks.OnErr != nil {
			s.hooks.OnErr(err)
		}
	}
	if !s.polling.Load() {
		loop.Run(onErr)
		return
	}
	for {
		closed := loop.isClosed()
		if loop.PollOnce(onErr) {
			continue
		}
		if closed {
			return
		}
		if s.hooks.OnIdle != nil {
			s.hooks.OnIdle()
		}
	}
}

// Stop posts OnStopped, closes every loop so it drains and exits, and
// blocks until all worker goroutines have returned. Stop on an
// already-stopped (or never-started) Service is a no-op.
func (s *Service) Stop() {
	if !s.started.Load() {
		return
	}
	s.Post(func() {
		if s.hooks.OnStopped != nil {
			s.hooks.OnStopped()
		}
	})
	s.mu.Lock()
	loops := append([]*IOLoop(nil), s.loops...)
	s.mu.Unlock()
	for _, l := range loops {
		l.Stop()
	}
	s.wg.Wait()
	s.started.Store(false)
}

// Control returns a snapshot registry describing this Service's current
// threading mode and loop count.
func (s *Service) Control() *control.Registry {
	reg := control.NewRegistry()
	reg.Set("threads", int64(s.cfg.Threads))
	started := int64(0)
	if s.started.Load() {
		started = 1
	}
	reg.Set("started", started)
	reg.RegisterProbe("loops", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.loops)
	})
	return reg
}

// Restart stops the Service (if running), discards its loops and strand,
// and starts fresh. Any Session/Server/Client bound to the old loops via
// GetIO must rebind after Restart returns.
func (s *Service) Restart(polling bool) {
	s.Stop()
	s.mu.Lock()
	s.loops = nil
	s.strand = nil
	s.cursor = 0
	s.mu.Unlock()
	s.Start(polling)
}
