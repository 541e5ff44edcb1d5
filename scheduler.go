package fiber

import (
	"sync"
	"sync/atomic"
)

// lifecycle states, spec §4.H.
const (
	lifecycleIdle int32 = iota
	lifecycleRunning
	lifecycleStopping
	lifecycleStopped
)

const (
	// DefaultStackSize mirrors the acl original's default for a small
	// worker fiber.
	DefaultStackSize = 32 * 1024
	// DefaultIOStackSize mirrors the acl original's STACK_SIZE for its
	// dedicated I/O fiber (≈800KiB).
	DefaultIOStackSize = 800 * 1024
	// DefaultMaxStackCeiling bounds the advisory stackSize accepted by
	// Create (see DESIGN.md O1 — Go goroutines grow their own stack, this
	// is a sanity ceiling, not a literal allocation size).
	DefaultMaxStackCeiling = 64 * 1024 * 1024
	// DefaultMaxFDs is the default size of the reactor's fd-indexed wait
	// table (spec §6, matching the teacher's maxEvents/acl's MAXFD).
	DefaultMaxFDs = 1024
)

// Logger is the minimal diagnostic sink a Scheduler can be given. A
// *log.Logger satisfies it trivially. Left nil by default: like the
// teacher's watcher.go, the hot path does not log anything on its own.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithLogger attaches a diagnostic logger to the scheduler.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithStackCeiling overrides the advisory maximum stack size Create will
// accept.
func WithStackCeiling(n int) Option {
	return func(s *Scheduler) { s.stackCeiling = n }
}

// WithMaxFDs overrides the size of the reactor's fd-indexed wait table.
func WithMaxFDs(n int) Option {
	return func(s *Scheduler) { s.maxFDs = n }
}

// Scheduler owns a ready queue, a fiber registry, a timer list and an event
// reactor, and drives fiber execution until the ready queue is empty. Once
// the I/O fiber exists it keeps the queue non-empty until a stop has been
// requested and no I/O waits or timer entries remain; the live user-fiber
// count is not part of that check, so fibers blocked on a Channel, or on a
// Mutex without a timeout, do not keep it running. A Scheduler must only be driven
// (Schedule called) from one goroutine; that goroutine is the "host thread"
// of spec §4.B.
type Scheduler struct {
	logger       Logger
	stackCeiling int
	maxFDs       int

	ready  *readyQueue
	fibers map[int64]*Fiber

	running   *Fiber
	schedDone chan *Fiber

	switches int64

	userCount     int32
	sleepingCount int32

	state         int32
	stopRequested int32

	timers *timerList

	reactorOnce   sync.Once
	reactorReady  int32 // atomically set to 1 once ioReactor is safe to read cross-goroutine
	reactorClosed int32 // atomically set to 1 once the I/O fiber has torn the reactor down
	ioReactor     reactor
	reactorErr    error
	ioFiber       *Fiber

	ioWaiters   map[int]*fdWaiters
	ioWaitCount int32

	crossMu    sync.Mutex
	crossReady []*Fiber
}

// NewScheduler creates an idle scheduler. Call Create to spawn fibers and
// Schedule to run them.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		stackCeiling: DefaultMaxStackCeiling,
		maxFDs:       DefaultMaxFDs,
		ready:        newReadyQueue(),
		fibers:       make(map[int64]*Fiber),
		schedDone:    make(chan *Fiber),
		timers:       newTimerList(),
		state:        lifecycleIdle,
		ioWaiters:    make(map[int]*fdWaiters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Create allocates a new fiber running entry(self, arg) and marks it ready.
// stackSize is advisory (see DESIGN.md O1); 0 uses DefaultStackSize. Returns
// ErrSchedulerStopped once this scheduler's Schedule call has already
// returned — there is no driving loop left to run a newly-created fiber.
func (s *Scheduler) Create(name string, entry EntryFunc, arg interface{}, stackSize int) (*Fiber, error) {
	if atomic.LoadInt32(&s.state) == lifecycleStopped {
		return nil, ErrSchedulerStopped
	}
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	if stackSize > s.stackCeiling {
		return nil, ErrStackTooLarge
	}

	f := newFiber(s, name, entry, arg, stackSize)
	s.fibers[f.id] = f
	s.incUserCount()

	go f.run()
	s.readyAppend(f)

	return f, nil
}

// readyAppend marks f ready and appends it to the tail of the ready queue.
func (s *Scheduler) readyAppend(f *Fiber) {
	f.setState(StateReady)
	s.ready.append(f)
}

func (s *Scheduler) switchCount() int64 {
	return atomic.LoadInt64(&s.switches)
}

func (s *Scheduler) incUserCount() {
	atomic.AddInt32(&s.userCount, 1)
}

func (s *Scheduler) decUserCount() {
	atomic.AddInt32(&s.userCount, -1)
}

func (s *Scheduler) incSleeping() {
	if atomic.AddInt32(&s.sleepingCount, 1) == 1 {
		// A first sleeper alone must not let the scheduler think there's
		// no live work; original fiber_io.c increments __fiber_count for
		// symmetry with fiber_count_dec below. Our userCount already
		// reflects the sleeping fiber (it was incremented at Create and
		// never decremented), so nothing further is needed here — kept
		// as a named hook so timer.go's intent is explicit at call sites.
	}
}

func (s *Scheduler) decSleeping() {
	atomic.AddInt32(&s.sleepingCount, -1)
}

// LiveUserFibers returns the number of non-system fibers still registered.
func (s *Scheduler) LiveUserFibers() int {
	return int(atomic.LoadInt32(&s.userCount))
}

// Running returns the fiber currently executing on this scheduler, or nil.
func (s *Scheduler) Running() *Fiber {
	return s.running
}

// Stop requests the scheduler terminate once the I/O fiber sees no
// outstanding I/O waits and no timer entries and the ready queue drains
// (see Scheduler); this is fiber_io_stop. Safe to call
// from any goroutine. If the I/O fiber is already parked in the reactor
// (possibly indefinitely, with no pending timer), this also interrupts it so
// the stop condition is observed promptly rather than only on the next
// unrelated readiness event.
func (s *Scheduler) Stop() {
	atomic.StoreInt32(&s.stopRequested, 1)
	if atomic.LoadInt32(&s.reactorReady) == 1 {
		s.ioReactor.wake()
	}
}

func (s *Scheduler) stopWasRequested() bool {
	return atomic.LoadInt32(&s.stopRequested) == 1
}

// suspend is called by the currently-running fiber (from its own goroutine)
// to hand control back to the driving Schedule loop. The fiber must already
// be linked into whatever wait structure will re-ready it, unless it is
// exiting.
func (s *Scheduler) suspend(f *Fiber) {
	s.schedDone <- f
}

// Schedule runs the scheduler loop: pop the ready queue, resume the chosen
// fiber, wait for it to suspend or exit, repeat; it returns as soon as the
// ready queue is empty, exactly like the C original's fiber_schedule(). A
// system fiber that never exits (the I/O fiber) keeps re-appending itself to
// the ready queue forever via its own internal Yield calls, which is what
// keeps the scheduler alive even though system fibers don't count toward
// LiveUserFibers; it is the I/O fiber's own loop (iofiber.go) that checks
// "no outstanding I/O waits, no timer entries and Stop was requested" to decide to return and
// let itself exit — see spec §4.H. Must be called from a single goroutine
// for the lifetime of the scheduler.
func (s *Scheduler) Schedule() {
	atomic.StoreInt32(&s.state, lifecycleRunning)

	for {
		f := s.ready.pop()
		if f == nil {
			break
		}

		s.running = f
		f.setState(StateRunning)
		atomic.AddInt64(&s.switches, 1)

		f.ctx.signalResume()
		done := <-s.schedDone

		s.running = nil

		if done.getState() == StateExiting {
			if !done.IsSystem() {
				s.decUserCount()
			}
			delete(s.fibers, done.id)
		}
	}

	atomic.StoreInt32(&s.state, lifecycleStopped)
}

// ensureIOFiber lazily creates the scheduler's reactor and its dedicated
// system fiber on first use, exactly like the C original's fiber_io_check /
// the lazy __ev_fiber creation in fiber_delay and fiber_wait_read/write.
// Idempotent; the error from the first (and only) reactor construction
// attempt is cached and returned on every subsequent call.
func (s *Scheduler) ensureIOFiber() error {
	s.reactorOnce.Do(func() {
		r, err := newReactor(s.maxFDs)
		if err != nil {
			s.reactorErr = err
			return
		}
		s.ioReactor = r

		f, err := s.Create("io", s.ioFiberLoop, nil, DefaultIOStackSize)
		if err != nil {
			s.reactorErr = err
			return
		}
		f.MarkSystem()
		s.ioFiber = f
		atomic.StoreInt32(&s.reactorReady, 1)
	})
	return s.reactorErr
}

// scheduleCrossThreadReady queues f to be re-readied by this scheduler's own
// driving goroutine and interrupts its reactor so the request is not left
// waiting for an unrelated timeout. Grounded on the teacher's
// pendingMutex/chPendingNotify split in watcher.go: any goroutine may enqueue
// work, but only the owning goroutine ever touches the ready queue or timer
// list. This is the only path by which the cross-thread-safe Mutex
// (mutex.go) hands ownership to a waiter living on a foreign scheduler
// (spec §4.G).
//
// It deliberately does not call ensureIOFiber: that creates the I/O fiber
// through Create, which mutates s.fibers/s.ready and is only safe from s's
// own driving goroutine. A scheduler must therefore already have taken at least one
// suspending action (Delay, a hook, an earlier same-thread Lock) before it
// can be the target of a cross-thread mutex grant — see DESIGN.md.
func (s *Scheduler) scheduleCrossThreadReady(f *Fiber) {
	s.crossMu.Lock()
	s.crossReady = append(s.crossReady, f)
	s.crossMu.Unlock()

	if atomic.LoadInt32(&s.reactorReady) == 1 {
		s.ioReactor.wake()
	}
}

// drainCrossThreadReady is called only from the scheduler's own driving
// goroutine (from within ioFiberLoop) to apply ready requests queued by
// scheduleCrossThreadReady from other threads.
func (s *Scheduler) drainCrossThreadReady() {
	s.crossMu.Lock()
	pending := s.crossReady
	s.crossReady = nil
	s.crossMu.Unlock()

	for _, f := range pending {
		s.wakeSuspended(f)
	}
}

// State reports the scheduler's lifecycle state for diagnostics.
func (s *Scheduler) State() string {
	switch atomic.LoadInt32(&s.state) {
	case lifecycleIdle:
		return "IDLE"
	case lifecycleRunning:
		return "RUNNING"
	case lifecycleStopping:
		return "STOPPING"
	case lifecycleStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
