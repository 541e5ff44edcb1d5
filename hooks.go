package fiber

import (
	"net"
	"reflect"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// waitReadable suspends the calling fiber until fd is readable (or an error
// registering the wait occurs), lazily starting the scheduler's I/O fiber on
// first use — spec §4.G's "the hook suspends the fiber until ... then
// performs the syscall" pattern, grounded on fiber_wait_read in
// original_source/lib_fiber/src/fiber_io.c.
func (f *Fiber) waitReadable(fd int) error {
	s := f.sched
	if err := s.ensureIOFiber(); err != nil {
		return err
	}
	if err := s.registerWait(fd, evReadable, f); err != nil {
		return err
	}
	f.Switch()
	return nil
}

// waitWritable is waitReadable's write-direction counterpart, grounded on
// fiber_wait_write.
func (f *Fiber) waitWritable(fd int) error {
	s := f.sched
	if err := s.ensureIOFiber(); err != nil {
		return err
	}
	if err := s.registerWait(fd, evWritable, f); err != nil {
		return err
	}
	f.Switch()
	return nil
}

// connFD extracts the underlying fd of a net.Conn, following the same guard
// the teacher's dupconn (RTradeLtd-gaio/aio_generic.go) uses before trusting
// a net.Conn's identity: reject anything that isn't a pointer-kind
// implementation, then go through the standard SyscallConn escape hatch
// rather than a private gaio-style dup — an embedding fiber owns the
// conn for as long as it holds it, so there is no GC-finalizer race to guard
// against the way gaio's proactor API has to.
func connFD(conn net.Conn) (int, error) {
	if conn == nil || reflect.TypeOf(conn).Kind() != reflect.Ptr {
		return -1, ErrUnsupported
	}
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, ErrUnsupported
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, ErrUnsupported
	}
	var fd int
	var ctrlErr error
	if err := rc.Control(func(ptr uintptr) { fd = int(ptr) }); err != nil {
		ctrlErr = err
	}
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// isAgain reports whether err is EAGAIN/EWOULDBLOCK, the only error the
// write-family retries on (spec §4.G).
func isAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// --- read family: suspend until readable, call the native syscall exactly
// once, return whatever it returns verbatim (short reads, EOF, and errors
// included) — spec §4.G, grounded on the teacher's tryRead single-attempt
// loop body (watcher.go) and fiber_io.c's read_callback hooks. ---

// Read suspends f until fd is readable and then performs a single
// non-blocking read(2) into buf.
func (f *Fiber) Read(fd int, buf []byte) (int, error) {
	if err := f.waitReadable(fd); err != nil {
		return 0, err
	}
	return syscall.Read(fd, buf)
}

// Readv is Read's scatter variant, using readv(2) via golang.org/x/sys/unix
// (not present in the standard syscall package on every platform).
func (f *Fiber) Readv(fd int, iovs [][]byte) (int, error) {
	if err := f.waitReadable(fd); err != nil {
		return 0, err
	}
	return unix.Readv(fd, iovs)
}

// Recv suspends f until fd is readable and performs a single recv(2).
func (f *Fiber) Recv(fd int, buf []byte, flags int) (int, error) {
	if err := f.waitReadable(fd); err != nil {
		return 0, err
	}
	n, _, err := unix.Recvfrom(fd, buf, flags)
	return n, err
}

// RecvFrom is Recv reporting the peer address, for unconnected (datagram)
// sockets.
func (f *Fiber) RecvFrom(fd int, buf []byte, flags int) (int, unix.Sockaddr, error) {
	if err := f.waitReadable(fd); err != nil {
		return 0, nil, err
	}
	n, from, err := unix.Recvfrom(fd, buf, flags)
	return n, from, err
}

// RecvMsg is Recv's ancillary-data variant (used to receive passed fds).
func (f *Fiber) RecvMsg(fd int, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error) {
	if err := f.waitReadable(fd); err != nil {
		return 0, 0, 0, nil, err
	}
	return unix.Recvmsg(fd, p, oob, flags)
}

// ReadConn is a convenience wrapper combining connFD with Read, for callers
// holding a net.Conn rather than a bare fd.
func (f *Fiber) ReadConn(conn net.Conn, buf []byte) (int, error) {
	fd, err := connFD(conn)
	if err != nil {
		return 0, err
	}
	return f.Read(fd, buf)
}

// --- write family: loop calling the native syscall; a successful call
// returns immediately, EAGAIN/EWOULDBLOCK suspends until writable and
// retries the identical call (no offset bookkeeping — a genuine EAGAIN means
// nothing was written), any other error returns verbatim — spec §4.G,
// grounded on the teacher's tryWrite retry loop and fiber_io.c's
// write_callback hooks. ---

// Write loops a non-blocking write(2) until it succeeds or fails with
// something other than EAGAIN/EWOULDBLOCK.
func (f *Fiber) Write(fd int, buf []byte) (int, error) {
	for {
		n, err := syscall.Write(fd, buf)
		if err == nil || !isAgain(err) {
			return n, err
		}
		if werr := f.waitWritable(fd); werr != nil {
			return 0, werr
		}
	}
}

// Writev is Write's gather variant.
func (f *Fiber) Writev(fd int, iovs [][]byte) (int, error) {
	for {
		n, err := unix.Writev(fd, iovs)
		if err == nil || !isAgain(err) {
			return n, err
		}
		if werr := f.waitWritable(fd); werr != nil {
			return 0, werr
		}
	}
}

// Send loops a single-attempt send(2)-equivalent (sendto with no address)
// until it succeeds or fails otherwise. unix.Sendto does not surface a
// partial-write count, so a nil error is reported as the full buffer having
// been accepted.
func (f *Fiber) Send(fd int, buf []byte, flags int) (int, error) {
	for {
		err := unix.Sendto(fd, buf, flags, nil)
		if err == nil {
			return len(buf), nil
		}
		if !isAgain(err) {
			return 0, err
		}
		if werr := f.waitWritable(fd); werr != nil {
			return 0, werr
		}
	}
}

// SendTo is Send addressed to an explicit peer, for unconnected sockets.
func (f *Fiber) SendTo(fd int, buf []byte, flags int, to unix.Sockaddr) (int, error) {
	for {
		err := unix.Sendto(fd, buf, flags, to)
		if err == nil {
			return len(buf), nil
		}
		if !isAgain(err) {
			return 0, err
		}
		if werr := f.waitWritable(fd); werr != nil {
			return 0, werr
		}
	}
}

// SendMsg is Send's ancillary-data variant (used to pass fds).
func (f *Fiber) SendMsg(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, oob, to, flags)
		if err == nil || !isAgain(err) {
			return n, err
		}
		if werr := f.waitWritable(fd); werr != nil {
			return 0, werr
		}
	}
}

// WriteConn is a convenience wrapper combining connFD with Write.
func (f *Fiber) WriteConn(conn net.Conn, buf []byte) (int, error) {
	fd, err := connFD(conn)
	if err != nil {
		return 0, err
	}
	return f.Write(fd, buf)
}

// --- connect / accept: wait for the matching readiness direction once, then
// perform the native call, mirroring the read-family's "wait then call
// once" shape (spec §4.G). ---

// Connect completes a non-blocking connect(2): the caller has already
// called unix.Connect once and gotten EINPROGRESS; Connect waits for the fd
// to become writable and then checks SO_ERROR to discover the outcome.
func (f *Fiber) Connect(fd int) error {
	if err := f.waitWritable(fd); err != nil {
		return err
	}
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return syscall.Errno(errno)
	}
	return nil
}

// Accept waits for a listening fd to become readable and performs a single
// accept4(2), returning the new connection's fd and peer address.
func (f *Fiber) Accept(fd int) (int, unix.Sockaddr, error) {
	if err := f.waitReadable(fd); err != nil {
		return -1, nil, err
	}
	return unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

// --- poll equivalent (spec §4.E's SUPPLEMENTED poll-equivalent; see
// SPEC_FULL.md) ---

// PollFD names one fd and the readiness directions a Poll call is interested
// in; on return, Events is replaced by whichever of those directions fired.
type PollFD struct {
	FD     int
	Events eventMask
}

// Poll suspends the calling fiber until at least one of fds becomes ready in
// a requested direction, or timeout elapses (timeout <= 0 means wait
// forever). It returns the subset of fds that fired. Internally this
// registers one wait per (fd, direction) pair plus, if timeout > 0, a timer
// entry racing them all; whichever source fires first cancels the rest
// (spec §5's cancellation/timeout composite), via the same
// Scheduler.wakeSuspended path a plain ReadTimeout-style hook would use.
func (f *Fiber) Poll(fds []PollFD, timeout time.Duration) ([]PollFD, error) {
	s := f.sched
	if err := s.ensureIOFiber(); err != nil {
		return nil, err
	}

	registered := make([]PollFD, 0, len(fds))
	for _, pfd := range fds {
		if err := s.registerWait(pfd.FD, pfd.Events, f); err != nil {
			for _, r := range registered {
				s.cancelWait(r.FD, r.Events)
			}
			return nil, err
		}
		registered = append(registered, pfd)
	}

	hasTimer := timeout > 0
	if hasTimer {
		if !f.sys {
			s.incSleeping()
		}
		s.timers.insert(f, nowMillis()+timeout.Milliseconds())
	}

	f.setState(StateSuspended)
	f.Switch()

	// Distinguish which source fired by how much of the I/O registration
	// survived: a timer win leaves every (fd, direction) entry untouched
	// (wakeSuspended only cancels the timer, never the I/O waiters), while
	// an I/O win clears at least the one direction that fired.
	var results []PollFD
	anyCleared := false
	for _, r := range registered {
		w, ok := s.ioWaiters[r.FD]
		var stillPending eventMask
		if ok {
			if w.readFiber == f {
				stillPending |= evReadable
			}
			if w.writeFiber == f {
				stillPending |= evWritable
			}
		}
		if stillPending != r.Events {
			anyCleared = true
		}
		if stillPending != 0 {
			s.cancelWait(r.FD, stillPending)
		}
		if fired := r.Events &^ stillPending; fired != 0 {
			results = append(results, PollFD{FD: r.FD, Events: fired})
		}
	}

	if len(results) == 0 && hasTimer && !anyCleared {
		return nil, ErrDeadline
	}
	return results, nil
}
