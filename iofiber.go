package fiber

import "sync/atomic"

// fdWaiters tracks, per fd, at most one fiber waiting to read and at most
// one waiting to write — spec §3's event reactor state invariant ("at most
// one fiber waits for readability on a given fd, and at most one for
// writability").
type fdWaiters struct {
	readFiber  *Fiber
	writeFiber *Fiber
}

func (w *fdWaiters) empty() bool {
	return w.readFiber == nil && w.writeFiber == nil
}

// registerWait links f as the (sole) waiter for mask on fd, arming the
// reactor for that direction. Returns ErrMisuse if another fiber is already
// waiting in the same direction on the same fd, ErrReactorClosed once the
// owning scheduler's I/O fiber has already torn the reactor down, and
// ErrTooManyFDs if fd is not already tracked and the fd table is already at
// its configured ceiling (WithMaxFDs, spec §6's MaxTrackedFDs).
func (s *Scheduler) registerWait(fd int, mask eventMask, f *Fiber) error {
	if atomic.LoadInt32(&s.reactorClosed) == 1 {
		return ErrReactorClosed
	}

	w, ok := s.ioWaiters[fd]
	if !ok {
		if len(s.ioWaiters) >= s.maxFDs {
			return ErrTooManyFDs
		}
		w = &fdWaiters{}
		s.ioWaiters[fd] = w
	}

	if mask&evReadable != 0 {
		if w.readFiber != nil {
			return ErrMisuse
		}
		w.readFiber = f
	}
	if mask&evWritable != 0 {
		if w.writeFiber != nil {
			return ErrMisuse
		}
		w.writeFiber = f
	}

	if err := s.ioReactor.addInterest(fd, mask); err != nil {
		if mask&evReadable != 0 {
			w.readFiber = nil
		}
		if mask&evWritable != 0 {
			w.writeFiber = nil
		}
		return err
	}

	f.setState(StateSuspended)
	s.ioWaitCount++
	return nil
}

// cancelWait unregisters a pending wait without it having fired — used by
// timeout composites (spec §5 "Cancellation and timeouts") when the timer
// entry wins the race against readiness.
func (s *Scheduler) cancelWait(fd int, mask eventMask) {
	w, ok := s.ioWaiters[fd]
	if !ok {
		return
	}
	if mask&evReadable != 0 && w.readFiber != nil {
		w.readFiber = nil
		s.ioWaitCount--
	}
	if mask&evWritable != 0 && w.writeFiber != nil {
		w.writeFiber = nil
		s.ioWaitCount--
	}
	s.ioReactor.removeInterest(fd, mask)
	if w.empty() {
		delete(s.ioWaiters, fd)
	}
}

// dispatchEvent is the reactor readiness callback policy of spec §4.C: for
// each direction that fired, remove interest (no auto re-arm), move the
// waiting fiber from SUSPENDED to READY, and clear the waiter slot.
func (s *Scheduler) dispatchEvent(e readyEvent) {
	w, ok := s.ioWaiters[e.fd]
	if !ok {
		return
	}

	if e.mask&evReadable != 0 && w.readFiber != nil {
		fib := w.readFiber
		w.readFiber = nil
		s.ioWaitCount--
		s.ioReactor.removeInterest(e.fd, evReadable)
		s.wakeSuspended(fib)
	}
	if e.mask&evWritable != 0 && w.writeFiber != nil {
		fib := w.writeFiber
		w.writeFiber = nil
		s.ioWaitCount--
		s.ioReactor.removeInterest(e.fd, evWritable)
		s.wakeSuspended(fib)
	}
	if w.empty() {
		delete(s.ioWaiters, e.fd)
	}
}

// wakeSuspended re-readies a suspended fiber, whatever woke it — I/O
// readiness (iofiber.go), a mutex grant (mutex.go), or a drained
// cross-thread ready request (scheduler.go). If the fiber was also racing a
// timeout composite (spec §5: "registering a wait and a timer entry;
// whichever fires first unregisters the other"), its timer-list membership
// is cancelled first — it must be, because a fiber may be linked into at
// most one of {ready queue, timer list, wait list} at once (spec invariant
// 2), and readyAppend below will otherwise silently repoint f.link away
// from a timer-list node container/list still holds. Guarded by state so a
// fiber racing two sources that both fire in the same batch is only ever
// re-readied once. Must only be called from the owning Scheduler's own
// driving goroutine.
func (s *Scheduler) wakeSuspended(f *Fiber) {
	if f.getState() != StateSuspended {
		return
	}
	if f.link != nil {
		s.timers.remove(f)
		if !f.sys {
			s.decSleeping()
		}
	}
	s.readyAppend(f)
}

// ioFiberLoop is the body of the distinguished I/O fiber (spec §4.C/§4.F),
// grounded directly on original_source/lib_fiber/src/fiber_io.c's
// fiber_io_loop: drain every currently-ready user fiber first, compute the
// timeout from the earliest timer entry, poll the reactor, dispatch
// readiness, and finally expire due timers. It returns — letting the
// trampoline exit it — only once there are no outstanding I/O waits AND no
// pending timer entries, with a stop requested, matching the original's
// "if (__io_count == 0 && __io_stop) break;" generalized to cover
// Delay/Sleep/mutex-timeout waiters, which live in the timer list rather
// than ioWaitCount (timer.go, mutex.go). The exit check runs after the
// timer-expiry block below, and unconditionally (no early continue when
// there is no timer yet): checking it before expiry, or skipping straight
// back to the top whenever head is nil, would abandon a fiber whose timer
// is due on this very pass, or — once every timer has fired but stop was
// requested before the reactor ever existed (reactorReady was still 0, so
// Stop's wake() call was a no-op) — re-enter the loop with timeoutMs == -1
// and block in reactor.wait forever with nothing left to wake it.
func (s *Scheduler) ioFiberLoop(self *Fiber, _ interface{}) {
	for {
		for self.Yield() > 0 {
		}

		var timeoutMs int
		head := s.timers.front()
		if head == nil {
			timeoutMs = -1
		} else {
			now := nowMillis()
			left := head.when - now
			if left < 0 {
				left = 0
			}
			if left > 0 {
				timeoutMs = int(left) + 1 // guard against early wake, spec §4.C step 3
			} else {
				timeoutMs = 0
			}
		}

		events, err := s.ioReactor.wait(timeoutMs)
		if err != nil {
			s.logf("fiber: reactor wait error: %v", err)
		}
		for _, e := range events {
			s.dispatchEvent(e)
		}
		s.drainCrossThreadReady()

		now := nowMillis()
		for {
			fiber := s.timers.front()
			if fiber == nil || now < fiber.when {
				break
			}
			s.timers.remove(fiber)
			if !fiber.sys {
				s.decSleeping()
			}
			s.readyAppend(fiber)
		}

		if s.ioWaitCount == 0 && s.timers.front() == nil && s.stopWasRequested() {
			if err := s.ioReactor.close(); err != nil {
				s.logf("fiber: reactor close error: %v", err)
			}
			atomic.StoreInt32(&s.reactorClosed, 1)
			return
		}
	}
}
