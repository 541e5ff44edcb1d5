//go:build linux

package fiber

import (
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// listenRaw opens a non-blocking IPv4 TCP listening socket directly, the way
// a hooked Accept expects, mirroring the teacher's echoServer helper
// (aio_test.go) but built from the syscall hooks this module adds rather
// than handed a *net.TCPListener.
func listenRaw(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		t.Fatal(err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		unix.Close(fd)
		t.Fatal(err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		t.Fatal(err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		t.Fatal(err)
	}
	return fd, sa.(*unix.SockaddrInet4).Port
}

// TestHookedEchoServer drives a one-shot echo server entirely through
// fiber-hooked Accept/Read/Write against a plain net.Dial client, the same
// shape as the teacher's TestEcho (aio_test.go) but exercising this
// module's cooperative suspension instead of gaio's proactor callbacks.
func TestHookedEchoServer(t *testing.T) {
	s := NewScheduler()
	lfd, port := listenRaw(t)
	defer unix.Close(lfd)

	done := make(chan struct{})
	var serverErr error

	_, err := s.Create("acceptor", func(self *Fiber, _ interface{}) {
		defer close(done)
		cfd, _, err := self.Accept(lfd)
		if err != nil {
			serverErr = err
			return
		}
		defer unix.Close(cfd)

		buf := make([]byte, 64)
		n, err := self.Read(cfd, buf)
		if err != nil {
			serverErr = err
			return
		}
		if _, err := self.Write(cfd, buf[:n]); err != nil {
			serverErr = err
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	go s.Schedule()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	msg := []byte("hello fiber")
	if _, err := conn.Write(msg); err != nil {
		t.Fatal(err)
	}

	rx := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, rx); err != nil {
		t.Fatal(err)
	}

	<-done
	s.Stop()

	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
	if string(rx) != string(msg) {
		t.Fatalf("echo = %q, want %q", rx, msg)
	}
}

// TestWriteRetriesOnEAGAIN exercises the write-family's retry loop by
// writing more than the kernel socket buffer will accept in one non-blocking
// call, forcing at least one EAGAIN/wait-writable cycle before completion.
func TestWriteRetriesOnEAGAIN(t *testing.T) {
	s := NewScheduler()
	lfd, port := listenRaw(t)
	defer unix.Close(lfd)

	const payloadSize = 4 << 20 // 4MiB, comfortably larger than default socket buffers
	payload := make([]byte, payloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan struct{})
	var serverErr error
	var written int

	_, err := s.Create("writer", func(self *Fiber, _ interface{}) {
		defer close(done)
		cfd, _, err := self.Accept(lfd)
		if err != nil {
			serverErr = err
			return
		}
		defer unix.Close(cfd)

		total := 0
		for total < len(payload) {
			n, err := self.Write(cfd, payload[total:])
			if err != nil {
				serverErr = err
				return
			}
			total += n
		}
		written = total
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	go s.Schedule()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	rx := make([]byte, payloadSize)
	if _, err := io.ReadFull(conn, rx); err != nil {
		t.Fatal(err)
	}

	<-done
	s.Stop()

	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
	if written != payloadSize {
		t.Fatalf("total written = %d, want %d", written, payloadSize)
	}
}

// TestRegisterWaitEnforcesMaxFDs exercises the fd-table ceiling directly: a
// fd not already tracked must be rejected with ErrTooManyFDs once the table
// is at WithMaxFDs's configured size. A bare *Fiber{} is enough here, the
// same way timer_test.go constructs one for timerList tests — registerWait
// never dereferences the fiber's scheduler field.
func TestRegisterWaitEnforcesMaxFDs(t *testing.T) {
	s := NewScheduler(WithMaxFDs(1))
	if err := s.ensureIOFiber(); err != nil {
		t.Fatalf("ensureIOFiber: %v", err)
	}

	r1, w1, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r1.Close()
	defer w1.Close()
	r2, w2, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	defer w2.Close()

	f := &Fiber{}
	if err := s.registerWait(int(r1.Fd()), evReadable, f); err != nil {
		t.Fatalf("first registerWait (within ceiling) = %v, want nil", err)
	}
	if err := s.registerWait(int(r2.Fd()), evReadable, f); err != ErrTooManyFDs {
		t.Fatalf("second registerWait (over ceiling) = %v, want ErrTooManyFDs", err)
	}
}

// TestRegisterWaitAfterStopReturnsErrReactorClosed drives a scheduler to a
// natural stop (no outstanding I/O waits or timers) and confirms the I/O
// fiber tears its reactor down on exit, so any further wait registration
// sees ErrReactorClosed instead of touching dead epoll state.
func TestRegisterWaitAfterStopReturnsErrReactorClosed(t *testing.T) {
	s := NewScheduler()

	_, err := s.Create("sleeper", func(self *Fiber, _ interface{}) {
		self.Delay(1)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Stop()
	s.Schedule()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	f := &Fiber{}
	if err := s.registerWait(int(r.Fd()), evReadable, f); err != ErrReactorClosed {
		t.Fatalf("registerWait after Schedule returned = %v, want ErrReactorClosed", err)
	}
}
