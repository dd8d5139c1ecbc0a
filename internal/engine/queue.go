package engine

import (
	"sync"

	"github.com/roach88/stagesync/internal/ir"
)

// taskQueue is the unbounded FIFO in front of the Run loop.
//
// Enqueue is safe from any goroutine; the Run loop is the only consumer.
// A buffered signal channel lets the loop wait on the queue and on
// context cancellation in one select.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []ir.Task
	closed bool
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]ir.Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a task. Returns false once the queue is closed.
func (q *taskQueue) Enqueue(t ir.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	// Coalesce signals; one pending wake-up is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (ir.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return ir.Task{}, false
	}
	t := q.tasks[0]
	// Clear the slot so the payload can be collected.
	q.tasks[0] = ir.Task{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns a channel that fires when tasks may be available. It is
// closed when the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further tasks and wakes the consumer.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
