package fiber

// fiberContext is the "Context" component of the runtime: the save/restore
// primitive for one fiber. The C original saves callee-saved registers and
// the stack pointer into a ucontext_t and resumes by swapcontext(3). Go
// goroutines already own a growable call stack that the runtime manages, so
// there is nothing to save or pivot manually; swap is realized instead as a
// blocking handoff over a dedicated channel, which is the "language-provided
// stackful-task facility" substitution spec §9 anticipates.
//
// resume carries exactly one token per resume: the scheduler sends on it to
// transfer control to the fiber, and the fiber's goroutine blocks receiving
// from it whenever it suspends. It is unbuffered so the send in Schedule
// cannot race ahead of the fiber actually being parked.
type fiberContext struct {
	resume chan struct{}
}

func newFiberContext() fiberContext {
	return fiberContext{resume: make(chan struct{})}
}

// awaitResume blocks the calling goroutine until the scheduler resumes it.
func (c *fiberContext) awaitResume() {
	<-c.resume
}

// signalResume wakes the fiber parked in awaitResume. Must only be called
// by the scheduler's driving goroutine, and only while the fiber is indeed
// parked there (i.e. immediately after popping it from the ready queue).
func (c *fiberContext) signalResume() {
	c.resume <- struct{}{}
}
