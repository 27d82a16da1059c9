package async

import "sync"

// Queue collects completed ops and hands them to a dispatcher in the order
// they were pushed. Push may be called with the owner's lock held; Flush
// must not be.
//
// Only one goroutine flushes at a time. Ops pushed by handlers while a
// flush is running are picked up by that same flush, so handlers can
// re-enter their owner without recursion or deadlock.
type Queue struct {
	d Dispatcher

	mu       sync.Mutex
	ops      []*Op
	draining bool
}

// NewQueue returns a queue feeding d, or Inline when d is nil.
func NewQueue(d Dispatcher) *Queue {
	return &Queue{d: Or(d)}
}

// Push appends op.
func (q *Queue) Push(op *Op) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
}

// Flush connects queued ops until none remain.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.ops) > 0 {
		op := q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.mu.Unlock()
		q.d.Connect(op)
		q.mu.Lock()
	}
	q.ops = nil
	q.draining = false
	q.mu.Unlock()
}

// Len returns the number of ops waiting to be flushed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
