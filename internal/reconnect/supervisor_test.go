package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/roomsync/internal/loop"
)

// scriptedChecker returns results in order and records when each check ran.
type scriptedChecker struct {
	sched   *loop.Manual
	mu      sync.Mutex
	results []error
	calls   []time.Duration
}

func (c *scriptedChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, c.sched.Now().Sub(time.Unix(0, 0)))
	if len(c.results) == 0 {
		return nil
	}
	err := c.results[0]
	c.results = c.results[1:]
	return err
}

func (c *scriptedChecker) callTimes() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.calls...)
}

var errDown = errors.New("503 service unavailable")

// waitUntil drains posted callbacks until cond holds.
func waitUntil(t *testing.T, sched *loop.Manual, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		sched.WaitPosted(10 * time.Millisecond)
	}
}

func TestSupervisor_JitterThenFixedRetry(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	checker := &scriptedChecker{sched: sched, results: []error{errDown, errDown, nil}}
	recovered := 0

	s := New(DefaultConfig(), sched, checker, func() { recovered++ }, nil,
		WithRand(func() float64 { return 0.25 }))
	s.Start()

	if d, ok := sched.NextDue(); !ok || d != 250*time.Millisecond {
		t.Fatalf("first check due in %v, want 250ms", d)
	}

	sched.Advance(249 * time.Millisecond)
	if len(checker.callTimes()) != 0 {
		t.Fatal("check fired early")
	}

	sched.Advance(time.Millisecond)
	waitUntil(t, sched, func() bool { return sched.Pending() == 1 })
	if d, ok := sched.NextDue(); !ok || d != time.Second {
		t.Fatalf("retry due in %v, want exactly 1s", d)
	}

	sched.Advance(time.Second)
	waitUntil(t, sched, func() bool { return sched.Pending() == 1 })
	sched.Advance(time.Second)
	waitUntil(t, sched, func() bool { return recovered == 1 })

	want := []time.Duration{250 * time.Millisecond, 1250 * time.Millisecond, 2250 * time.Millisecond}
	got := checker.callTimes()
	if len(got) != len(want) {
		t.Fatalf("check times = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("check times = %v, want %v", got, want)
		}
	}

	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}
	if s.Running() {
		t.Error("supervisor still running after recovery")
	}
	if s.Attempts() != 3 {
		t.Errorf("Attempts = %d, want 3", s.Attempts())
	}

	sched.Advance(10 * time.Second)
	if len(checker.callTimes()) != 3 || recovered != 1 {
		t.Error("checks continued after recovery")
	}
}

func TestSupervisor_FirstDelayWithinWindow(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	s := New(DefaultConfig(), sched, CheckerFunc(func(context.Context) error { return nil }), nil, nil)

	for i := 0; i < 200; i++ {
		s.Start()
		d, ok := sched.NextDue()
		if !ok {
			t.Fatal("no check scheduled")
		}
		if d < 0 || d >= time.Second {
			t.Fatalf("first delay %v outside [0, 1s)", d)
		}
		if sched.Pending() != 1 {
			t.Fatalf("Pending = %d, restart must cancel the previous check", sched.Pending())
		}
	}
	s.Stop()
}

func TestSupervisor_Stop(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	checker := &scriptedChecker{sched: sched}
	recovered := 0

	s := New(DefaultConfig(), sched, checker, func() { recovered++ }, nil,
		WithRand(func() float64 { return 0.5 }))
	s.Start()
	s.Stop()

	sched.Advance(5 * time.Second)
	if len(checker.callTimes()) != 0 {
		t.Error("check ran after Stop")
	}
	if recovered != 0 {
		t.Error("recovered after Stop")
	}
}

func TestSupervisor_StopDiscardsInFlightResult(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	release := make(chan struct{})
	started := make(chan struct{})
	var sawCancel bool

	checker := CheckerFunc(func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			sawCancel = true
		}
		return nil
	})
	recovered := 0

	s := New(DefaultConfig(), sched, checker, func() { recovered++ }, nil,
		WithRand(func() float64 { return 0 }))
	s.Start()
	sched.Advance(0)

	<-started
	s.Stop()
	if !sched.WaitPosted(time.Second) {
		t.Fatal("result not posted")
	}
	if recovered != 0 {
		t.Error("stale result triggered recovery")
	}
	if !sawCancel {
		t.Error("in-flight check was not cancelled")
	}
	close(release)
}
