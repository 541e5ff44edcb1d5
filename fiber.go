package fiber

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the execution state of a Fiber.
type State int32

const (
	// StateReady means the fiber is linked into the ready queue, waiting
	// for the scheduler to resume it.
	StateReady State = iota
	// StateRunning means the fiber currently owns the CPU.
	StateRunning
	// StateSuspended means the fiber is linked into exactly one wait
	// structure (timer list, channel wait list, mutex waiter FIFO, or the
	// reactor's fd table) and will be re-readied when that condition
	// clears.
	StateSuspended
	// StateExiting means the fiber has called Exit and is unwinding back
	// to the scheduler for final cleanup.
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSuspended:
		return "SUSPENDED"
	case StateExiting:
		return "EXITING"
	default:
		return "UNKNOWN"
	}
}

// EntryFunc is the function a fiber runs. It receives its own handle and the
// opaque argument passed to Create.
type EntryFunc func(self *Fiber, arg interface{})

// Fiber is one cooperatively scheduled execution context. The zero value is
// not usable; obtain one from Scheduler.Create.
type Fiber struct {
	id    int64
	name  string
	sched *Scheduler
	ctx   fiberContext

	entry EntryFunc
	arg   interface{}

	stackSize int

	mu    sync.Mutex
	state State
	sys   bool // system fiber: excluded from the live-user-fiber count

	when int64 // deadline, ms since epoch; valid only while linked in the timer list

	// link is the element by which this fiber is linked into exactly one
	// of: the ready queue, the timer list, or a channel wait list. Never
	// more than one at a time (spec invariant 2). A fiber waiting on a Mutex
	// is tracked by its mutexWaiter's own element instead (link then only
	// holds its timer entry, if Lock was given a timeout), and a fiber
	// waiting on an fd by the scheduler's ioWaiters table.
	link *list.Element

	exitCode int
	panicVal interface{}
}

var fiberIDGen int64

func newFiber(sched *Scheduler, name string, entry EntryFunc, arg interface{}, stackSize int) *Fiber {
	return &Fiber{
		id:        atomic.AddInt64(&fiberIDGen, 1),
		name:      name,
		sched:     sched,
		ctx:       newFiberContext(),
		entry:     entry,
		arg:       arg,
		stackSize: stackSize,
		state:     StateReady,
	}
}

// ID returns the fiber's process-lifetime-unique, monotonically assigned id.
func (f *Fiber) ID() int64 { return f.id }

// Name returns the human-readable label given at creation time, if any.
func (f *Fiber) Name() string { return f.name }

// Scheduler returns the scheduler this fiber belongs to.
func (f *Fiber) Scheduler() *Scheduler { return f.sched }

func (f *Fiber) getState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fiber) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// IsSystem reports whether this fiber is excluded from the scheduler's live
// user-fiber termination count.
func (f *Fiber) IsSystem() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sys
}

// MarkSystem demotes the fiber to system status, as the original runtime's
// fiber_system() does for its I/O fiber. Any other embedding fiber (e.g. a
// background housekeeping task) may call this on itself once, right after
// creation, so that its existence never blocks Schedule from returning.
func (f *Fiber) MarkSystem() {
	f.mu.Lock()
	already := f.sys
	f.sys = true
	f.mu.Unlock()
	if !already {
		f.sched.decUserCount()
	}
}

// Err returns the error recorded when the fiber's entry function panicked.
// A fiber that exits normally (including via an explicit call to Exit)
// always returns nil here; panics never cross the context-switch boundary
// into another fiber or into the scheduler's caller.
func (f *Fiber) Err() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.panicVal
}

// ExitCode returns the code passed to Exit (or 0, if the entry function
// simply returned).
func (f *Fiber) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}

func (f *Fiber) String() string {
	return fmt.Sprintf("fiber[%d:%s:%s]", f.id, f.name, f.getState())
}

// run is the trampoline: on first resume it calls entry(self, arg) and, on
// return (normal or panicking), calls Exit. This goroutine parks on
// ctx.awaitResume() whenever the fiber suspends and is only ever doing
// anything observable while it is the scheduler's `running` fiber.
func (f *Fiber) run() {
	f.ctx.awaitResume()

	defer func() {
		if r := recover(); r != nil {
			f.mu.Lock()
			f.panicVal = r
			f.mu.Unlock()
			f.sched.logf("fiber %d panicked: %v", f.id, r)
		}
		f.Exit(f.exitCodeOrZero())
	}()

	f.entry(f, f.arg)
}

func (f *Fiber) exitCodeOrZero() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}

// Yield marks the current fiber ready (appended to the tail of the ready
// queue, see DESIGN.md O3) and switches back to the scheduler. It returns
// the number of other fibers that ran before this one was resumed, which
// callers can use as a fairness heuristic.
func (f *Fiber) Yield() int {
	before := f.sched.switchCount()
	f.setState(StateReady)
	f.sched.readyAppend(f)
	f.Switch()
	return int(f.sched.switchCount() - before - 1)
}

// Switch returns control to the scheduler without re-marking the fiber
// ready. Callers intending to be resumed later must already have linked
// themselves into some wait structure (timer list, channel/mutex wait list,
// or the reactor's fd table) before calling this.
func (f *Fiber) Switch() {
	f.sched.suspend(f)
	f.ctx.awaitResume()
}

// Exit terminates the fiber with the given code. It never returns to its
// caller: like the C original's fiber_exit, it switches away permanently,
// which in Go is expressed with runtime.Goexit after handing control back
// to the scheduler, so that deferred cleanups on the fiber's own call stack
// still run (spec §9) while the stack itself is discarded rather than
// unwound into whatever resumed it.
func (f *Fiber) Exit(code int) {
	f.mu.Lock()
	if f.state == StateExiting {
		// Already unwinding (Exit called explicitly and we're now
		// re-entering through the trampoline's deferred cleanup);
		// avoid suspending a second time.
		f.mu.Unlock()
		goexit()
		return
	}
	f.exitCode = code
	f.state = StateExiting
	f.mu.Unlock()
	f.sched.suspend(f)
	goexit()
}
