// Package eventloop runs every supervisor callback on one goroutine.
// Process exits, timers and toggle requests all arrive as tasks, so the
// state they touch needs no locking.
package eventloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/turtacn/wmswitch/pkg/logger"
)

// Handle refers to a scheduled task.
type Handle interface {
	// Cancel drops the task if it has not run yet and reports whether it did so.
	Cancel() bool
}

// Scheduler is what loop users depend on.
type Scheduler interface {
	// Post queues fn to run as soon as possible. Safe from any goroutine.
	Post(fn func())
	// After queues fn to run once d has elapsed. Safe from any goroutine.
	After(d time.Duration, fn func()) Handle
}

type task struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
	loop  *Loop
}

func (t *task) Cancel() bool {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&l.queue, t.index)
	return true
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Loop is a single-threaded dispatcher over a deadline-ordered task queue.
type Loop struct {
	mu    sync.Mutex
	queue taskHeap
	seq   uint64
	wake  chan struct{}
	log   logger.Logger
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		log:  logger.Log.With("component", "eventloop"),
	}
}

func (l *Loop) Post(fn func()) {
	l.After(0, fn)
}

func (l *Loop) After(d time.Duration, fn func()) Handle {
	l.mu.Lock()
	l.seq++
	t := &task{at: time.Now().Add(d), seq: l.seq, fn: fn, loop: l}
	heap.Push(&l.queue, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return t
}

// Len reports the number of pending tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run dispatches tasks on the calling goroutine until ctx is done.
// Pending tasks are dropped on return.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		next, wait := l.due()
		if next != nil {
			l.dispatch(next)
			continue
		}

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// due pops the head task if its deadline passed. Otherwise it returns the
// time until the head is due, or -1 for an empty queue.
func (l *Loop) due() (*task, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, -1
	}
	head := l.queue[0]
	if d := time.Until(head.at); d > 0 {
		return nil, d
	}
	heap.Pop(&l.queue)
	return head, 0
}

func (l *Loop) dispatch(t *task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Task panicked", "panic", r)
		}
	}()
	t.fn()
}

// Personal.AI order the ending
