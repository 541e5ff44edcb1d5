//go:build linux

package fiber

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor is the concrete reactor for spec §4.D, grounded on the
// teacher's pfd *poller / chEventNotify wiring (watcher.go:41-52,444) and
// RTradeLtd-gaio/aio_generic.go's maxEvents constant. The retrieval pack
// only carried the teacher's platform-independent watcher.go, not its
// poller_linux.go, so the actual epoll syscalls here are written directly
// against golang.org/x/sys/unix — the dependency the rest of the pack
// (phroun-pawscript, recera-vango) already carries for exactly this
// purpose.
type epollReactor struct {
	epfd int

	mu     sync.Mutex
	masks  map[int]eventMask
	events []unix.EpollEvent

	wakeFD int // eventfd used to interrupt an in-progress EpollWait
}

func newReactor(maxFDs int) (reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	r := &epollReactor{
		epfd:   epfd,
		masks:  make(map[int]eventMask, maxFDs),
		events: make([]unix.EpollEvent, maxFDs),
		wakeFD: wakeFD,
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, err
	}

	return r, nil
}

func toEpollEvents(mask eventMask) uint32 {
	var ev uint32
	if mask&evReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&evWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) addInterest(fd int, mask eventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, existed := r.masks[fd]
	newMask := cur | mask
	r.masks[fd] = newMask

	ev := &unix.EpollEvent{Events: toEpollEvents(newMask), Fd: int32(fd)}
	if !existed {
		return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (r *epollReactor) removeInterest(fd int, mask eventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, existed := r.masks[fd]
	if !existed {
		return nil
	}
	newMask := cur &^ mask
	if newMask == 0 {
		delete(r.masks, fd)
		return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	r.masks[fd] = newMask
	ev := &unix.EpollEvent{Events: toEpollEvents(newMask), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (r *epollReactor) wait(timeoutMs int) ([]readyEvent, error) {
	for {
		n, err := unix.EpollWait(r.epfd, r.events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}

		var out []readyEvent
		for i := 0; i < n; i++ {
			ev := r.events[i]
			fd := int(ev.Fd)
			if fd == r.wakeFD {
				r.drainWake()
				continue
			}
			var mask eventMask
			if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				mask |= evReadable
			}
			if ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
				mask |= evWritable
			}
			if mask != 0 {
				out = append(out, readyEvent{fd: fd, mask: mask})
			}
		}
		return out, nil
	}
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	unix.Read(r.wakeFD, buf[:])
}

func (r *epollReactor) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(r.wakeFD, buf[:])
}

func (r *epollReactor) close() error {
	unix.Close(r.wakeFD)
	return unix.Close(r.epfd)
}
