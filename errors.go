package fiber

import "errors"

var (
	// ErrSchedulerStopped is returned by Scheduler.Create once that
	// scheduler's Schedule call has already returned.
	ErrSchedulerStopped = errors.New("fiber: scheduler is not running")

	// ErrUnsupported means the connection passed to a hook cannot be
	// resolved to a raw file descriptor.
	ErrUnsupported = errors.New("fiber: unsupported connection, must expose SyscallConn")

	// ErrDeadline means the specific operation has exceeded its deadline
	// before completion.
	ErrDeadline = errors.New("fiber: operation exceeded deadline")

	// ErrEmptyBuffer means a write was attempted with a zero-length buffer.
	ErrEmptyBuffer = errors.New("fiber: empty buffer")

	// ErrStackTooLarge is returned by Create when the requested stack size
	// exceeds the configured ceiling (see WithStackCeiling).
	ErrStackTooLarge = errors.New("fiber: requested stack size exceeds ceiling")

	// ErrMisuse marks a programmer error: Mutex.Unlock by a fiber that does
	// not own the mutex, or a second fiber waiting in the same direction on
	// an fd that already has a waiter.
	ErrMisuse = errors.New("fiber: misuse of fiber API")

	// ErrChannelClosed is returned by Send on a closed channel.
	ErrChannelClosed = errors.New("fiber: channel is closed")

	// ErrLockTimeout is returned by Mutex.Lock when a configured
	// read_wait_ms timeout elapses before the lock is granted.
	ErrLockTimeout = errors.New("fiber: lock wait timed out")

	// ErrReactorClosed means the event reactor has already been torn down.
	ErrReactorClosed = errors.New("fiber: reactor closed")

	// ErrTooManyFDs means the reactor's fd table is exhausted (see
	// WithMaxFDs).
	ErrTooManyFDs = errors.New("fiber: too many tracked file descriptors")
)
