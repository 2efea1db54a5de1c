package eventloop

import (
	"sort"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Nothing runs until
// Advance or RunPending is called, which makes timer-heavy code testable
// without sleeping. Not safe for concurrent use.
type Manual struct {
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	at       time.Duration
	seq      uint64
	fn       func()
	canceled bool
	done     bool
}

func (t *manualTask) Cancel() bool {
	if t.canceled || t.done {
		return false
	}
	t.canceled = true
	return true
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Post(fn func()) { m.After(0, fn) }

func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.seq++
	t := &manualTask{at: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration { return m.now }

// Pending counts tasks that are neither run nor cancelled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.canceled && !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every task that falls due
// in deadline order. Tasks scheduled while advancing run too if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now + d
	for {
		t := m.next(end)
		if t == nil {
			break
		}
		if t.at > m.now {
			m.now = t.at
		}
		t.done = true
		t.fn()
	}
	m.now = end
}

// RunPending runs tasks due at the current instant.
func (m *Manual) RunPending() { m.Advance(0) }

func (m *Manual) next(end time.Duration) *manualTask {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.canceled && !t.done {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at == m.tasks[j].at {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at < m.tasks[j].at
	})
	if len(m.tasks) == 0 || m.tasks[0].at > end {
		return nil
	}
	return m.tasks[0]
}

var (
	_ Scheduler = (*Loop)(nil)
	_ Scheduler = (*Manual)(nil)
)

// Personal.AI order the ending
