package fiber

import "container/list"

// readyQueue is the FIFO of runnable fibers maintained by the scheduler
// (spec §3/§4.B). Grounded on the teacher's use of container/list for its
// per-fd reader/writer wait lists (watcher.go's fdDesc), the same ordered
// push/pop-front shape reused here for the ready queue.
type readyQueue struct {
	l *list.List
}

func newReadyQueue() *readyQueue {
	return &readyQueue{l: list.New()}
}

// append adds f to the tail of the queue. Both fiber_ready and fiber_yield
// use tail insertion here (DESIGN.md O3), unlike the C original which
// prepends and is flagged by spec §9 as inconsistent between call sites.
func (q *readyQueue) append(f *Fiber) {
	f.link = q.l.PushBack(f)
}

// pop removes and returns the fiber at the head of the queue, or nil if
// empty.
func (q *readyQueue) pop() *Fiber {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	f := e.Value.(*Fiber)
	f.link = nil
	return f
}

func (q *readyQueue) len() int {
	return q.l.Len()
}
