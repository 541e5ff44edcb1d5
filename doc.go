// Package fiber implements a user-space stackful coroutine runtime: a
// cooperative scheduler that multiplexes many independently-executing
// "fibers" over a single OS thread, turning blocking I/O into suspension
// points driven by a readiness event loop, with timers, channels and
// fiber-aware mutexes.
//
// A scheduler is single-threaded: at any instant at most one fiber is
// running, and fibers only hand control back at explicit suspension points
// (Yield, Delay, a blocked Channel send/recv, a blocked Mutex.Lock, or a
// hooked I/O call that must wait for readiness). There is no preemption and
// no cross-core parallelism within one Scheduler; coordination across
// schedulers running on separate OS threads goes through the cross-thread
// Mutex and the reactor's wakeup fd only.
//
// Fibers are backed by ordinary goroutines, each gated by a dedicated
// rendezvous channel so that only the fiber the scheduler has just resumed
// is ever runnable; see context.go for the handoff.
package fiber
