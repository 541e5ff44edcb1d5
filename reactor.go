package fiber

// eventMask identifies the readiness directions the reactor multiplexes
// (spec §3: "a mapping fd → {mask, wait_fiber} where mask ⊆ {READABLE,
// WRITABLE}").
type eventMask uint8

const (
	evReadable eventMask = 1 << iota
	evWritable
)

// readyEvent is one fd's readiness report from a single reactor.wait call.
// Grounded on RTradeLtd-gaio/aio_generic.go's event{ident, r, w} and the
// batch pollerEvents slice it is delivered in — "batch processing is the
// key to amortize context switching costs for tiny messages", a comment
// worth keeping in spirit even though our dispatch amortizes fiber
// wake-ups rather than syscalls.
type readyEvent struct {
	fd   int
	mask eventMask
}

// reactor is the level-triggered fd multiplexer of spec §4.C/§4.D. It is
// deliberately narrow: it knows nothing about fibers, only about fds and
// readiness directions; the Scheduler's I/O fiber (iofiber.go) is the layer
// that maps fd+direction to a waiting Fiber.
type reactor interface {
	// addInterest registers (or extends) interest in mask for fd. The
	// reactor does not auto re-arm: after a direction fires, the caller
	// must addInterest again to see it fire a second time (spec §4.C
	// "the system does not re-arm automatically").
	addInterest(fd int, mask eventMask) error
	// removeInterest clears mask from fd's registered interest.
	removeInterest(fd int, mask eventMask) error
	// wait blocks up to timeoutMs milliseconds (negative means forever)
	// and returns the fds that became ready, or were forced awake via
	// wake(). A zero-length, nil-error result is a legitimate timeout.
	wait(timeoutMs int) ([]readyEvent, error)
	// wake forces an in-progress or immediately following wait() to
	// return early. Used by the cross-scheduler mutex wakeup path
	// (spec §4.G).
	wake()
	// close releases the reactor's OS resources.
	close() error
}
