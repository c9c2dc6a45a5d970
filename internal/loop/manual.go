package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by virtual time. Callbacks run on the
// goroutine that calls Advance, Drain or WaitPosted.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	posted []func()
	notify chan struct{}
}

type manualTimer struct {
	due  time.Time
	seq  int
	task *Task
	fn   func()
}

// NewManual creates a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		notify: make(chan struct{}, 1),
	}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn until the next Advance, Drain or WaitPosted.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn at now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Task{}
	mt := &manualTimer{due: m.now.Add(d), seq: m.seq, task: t, fn: fn}
	m.seq++
	m.timers = append(m.timers, mt)
	t.stop = func() { m.remove(mt) }
	return t
}

func (m *Manual) remove(target *manualTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, mt := range m.timers {
		if mt == target {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// NextDue returns the delay until the earliest armed timer.
func (m *Manual) NextDue() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return 0, false
	}
	m.sortLocked()
	return m.timers[0].due.Sub(m.now), true
}

// Advance moves virtual time forward by d, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	m.Drain()
	for {
		m.mu.Lock()
		m.sortLocked()
		if len(m.timers) == 0 || m.timers[0].due.After(target) {
			m.now = target
			m.mu.Unlock()
			break
		}
		mt := m.timers[0]
		m.timers = m.timers[1:]
		m.now = mt.due
		m.mu.Unlock()

		mt.task.run(mt.fn)
		m.Drain()
	}
	m.Drain()
}

// Drain runs every posted callback, including ones posted while draining.
func (m *Manual) Drain() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()

		fn()
	}
}

// WaitPosted blocks until something is posted (or timeout) and drains it.
func (m *Manual) WaitPosted(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		m.mu.Lock()
		n := len(m.posted)
		m.mu.Unlock()
		if n > 0 {
			m.Drain()
			return true
		}
		select {
		case <-m.notify:
		case <-deadline:
			return false
		}
	}
}

func (m *Manual) sortLocked() {
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
}
