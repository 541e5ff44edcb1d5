package fiber

import (
	"container/list"
	"sync"
	"time"
)

// Mutex is the fiber-aware mutual-exclusion primitive of spec §4.G: a
// waiter FIFO with direct ownership hand-off (the unlocker never actually
// sets locked=false and lets someone race to grab it — it transfers
// ownership to the FIFO head in the same call), plus an optional
// per-Lock-call timeout. Unlike Channel, Mutex is explicitly specified as
// usable across scheduler threads, so its own bookkeeping is guarded by a
// real sync.Mutex; waking a waiter that lives on a different Scheduler goes
// through Scheduler.scheduleCrossThreadReady rather than touching that
// scheduler's ready queue directly (spec §4.G: "waiting fibers on a foreign
// scheduler must be signalled via a thread-safe wakeup channel").
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	owner   *Fiber
	waiters *list.List // of *mutexWaiter, FIFO
}

type mutexWaiter struct {
	fiber   *Fiber
	granted bool
	elem    *list.Element // this waiter's own node, for self-cancellation on timeout
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{waiters: list.New()}
}

// Lock blocks fiber f until the mutex is acquired. timeout <= 0 waits
// forever; otherwise Lock returns ErrLockTimeout if ownership was not
// granted within timeout, having first removed f from the waiter FIFO.
func (m *Mutex) Lock(f *Fiber, timeout time.Duration) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.owner = f
		m.mu.Unlock()
		return nil
	}
	w := &mutexWaiter{fiber: f}
	w.elem = m.waiters.PushBack(w)
	m.mu.Unlock()

	s := f.sched
	hasTimeout := timeout > 0
	if hasTimeout {
		if err := s.ensureIOFiber(); err != nil {
			m.mu.Lock()
			if w.elem != nil {
				m.waiters.Remove(w.elem)
				w.elem = nil
			}
			m.mu.Unlock()
			return err
		}
		if !f.sys {
			s.incSleeping()
		}
		s.timers.insert(f, nowMillis()+timeout.Milliseconds())
	}
	f.setState(StateSuspended)
	f.Switch()

	m.mu.Lock()
	granted := w.granted
	if !granted && w.elem != nil {
		m.waiters.Remove(w.elem)
		w.elem = nil
	}
	m.mu.Unlock()

	if !granted {
		return ErrLockTimeout
	}
	return nil
}

// TryLock acquires the mutex only if it is immediately free, never blocking.
func (m *Mutex) TryLock(f *Fiber) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	m.owner = f
	return true
}

// Unlock releases the mutex held by f. If waiters are queued, ownership
// transfers directly to the FIFO head, which is re-readied on its own
// scheduler — same-thread waiters go straight through wakeSuspended (which
// also cancels any racing timeout), foreign-scheduler waiters are queued via
// scheduleCrossThreadReady. Unlock on a mutex f does not own is ErrMisuse.
func (m *Mutex) Unlock(f *Fiber) error {
	m.mu.Lock()
	if m.owner != f {
		m.mu.Unlock()
		return ErrMisuse
	}

	e := m.waiters.Front()
	if e == nil {
		m.locked = false
		m.owner = nil
		m.mu.Unlock()
		return nil
	}

	w := e.Value.(*mutexWaiter)
	m.waiters.Remove(e)
	w.elem = nil
	w.granted = true
	m.owner = w.fiber
	// m.locked stays true: ownership hands off without an intervening
	// unlocked window.
	m.mu.Unlock()

	target := w.fiber.sched
	if target == f.sched {
		target.wakeSuspended(w.fiber)
	} else {
		target.scheduleCrossThreadReady(w.fiber)
	}
	return nil
}

// Owner returns the fiber currently holding the lock, or nil.
func (m *Mutex) Owner() *Fiber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}
