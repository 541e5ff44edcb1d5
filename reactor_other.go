//go:build !linux

package fiber

import "time"

// fallbackReactor backs platforms without an epoll binding in this module.
// It honors the wait() half of the reactor contract (so Delay/Sleep and
// timer-driven scenarios keep working everywhere) but cannot multiplex file
// descriptors, matching spec §1's non-goal that only the enumerated I/O
// families need to be portable at all, and spec §4.D's reactor being an
// internal collaborator rather than part of the embedding API's portable
// surface. See DESIGN.md for why only linux gets a real implementation: the
// retrieval pack's only concrete poller grounding (gaio) is itself built
// against epoll/kqueue per-OS files the pack did not retrieve, and nothing
// in the pack demonstrates a kqueue binding to follow for darwin/bsd.
type fallbackReactor struct {
	wakeCh chan struct{}
}

func newReactor(maxFDs int) (reactor, error) {
	return &fallbackReactor{wakeCh: make(chan struct{}, 1)}, nil
}

func (r *fallbackReactor) addInterest(fd int, mask eventMask) error {
	return ErrUnsupported
}

func (r *fallbackReactor) removeInterest(fd int, mask eventMask) error {
	return ErrUnsupported
}

func (r *fallbackReactor) wait(timeoutMs int) ([]readyEvent, error) {
	if timeoutMs < 0 {
		<-r.wakeCh
		return nil, nil
	}
	select {
	case <-r.wakeCh:
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
	}
	return nil, nil
}

func (r *fallbackReactor) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *fallbackReactor) close() error {
	return nil
}
