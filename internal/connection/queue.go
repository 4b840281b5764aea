package connection

import "sync"

// Queue is the event loop's inbox: an unbounded FIFO ring that doubles once
// it is 70% full. Send never blocks, so provider callbacks can post from any
// goroutine.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	n      int
	closed bool
	stats  QueueStats
}

// QueueStats describes inbox pressure.
type QueueStats struct {
	Depth    int   `json:"depth"`    // Events waiting for the loop
	Peak     int   `json:"peak"`     // Highest depth seen
	Enqueued int64 `json:"enqueued"` // Events accepted since creation
	Grows    int   `json:"grows"`
}

// NewQueue creates a queue with room for size events before growing.
func NewQueue[T any](size int) *Queue[T] {
	q := &Queue[T]{ring: make([]T, max(size, 1))}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends ev. Returns false once the queue is closed.
func (q *Queue[T]) Send(ev T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.n+1 >= max(len(q.ring)*7/10, 1) {
		q.grow()
	}

	q.ring[(q.head+q.n)%len(q.ring)] = ev
	q.n++
	q.stats.Enqueued++
	q.stats.Peak = max(q.stats.Peak, q.n)

	q.cond.Signal()
	return true
}

// Receive blocks for the oldest event. It returns false once the queue is
// closed and drained.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.n == 0 && !q.closed {
		q.cond.Wait()
	}

	var zero T
	if q.n == 0 {
		return zero, false
	}

	ev := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.n--
	return ev, true
}

// Close rejects further sends and wakes the receiver.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Stats returns the current depth and lifetime counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Depth = q.n
	return s
}

// grow unrolls the ring into a buffer twice the size. Caller holds mu.
func (q *Queue[T]) grow() {
	ring := make([]T, 2*len(q.ring))
	for i := 0; i < q.n; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
	q.stats.Grows++
}
