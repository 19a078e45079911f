package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeHandler struct {
	mu    sync.Mutex
	calls []int64
	fn    func(seq int64) (Plan, error)
}

func (f *fakeHandler) OnTurnTimer(_ context.Context, _ string, seq int64) (Plan, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seq)
	fn := f.fn
	f.mu.Unlock()
	return fn(seq)
}

func (f *fakeHandler) seen() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestScheduler(t *testing.T, h Handler) *Scheduler {
	t.Helper()
	s := NewScheduler(Options{Workers: 2, FireTimeout: time.Second})
	s.Attach(h)
	t.Cleanup(s.Close)
	return s
}

func TestSchedulerReArmsWithPlannedSequence(t *testing.T) {
	h := &fakeHandler{fn: func(seq int64) (Plan, error) {
		if seq >= 3 {
			return Plan{Stop: true}, nil
		}
		return Plan{Seq: seq + 1, After: 5 * time.Millisecond}, nil
	}}
	s := newTestScheduler(t, h)

	s.Schedule("s1", 1, 5*time.Millisecond)
	waitFor(t, "three fires", func() bool { return len(h.seen()) == 3 })
	waitFor(t, "entry removal", func() bool { return !s.Scheduled("s1") })

	got := h.seen()
	for i, want := range []int64{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("fire %d saw seq %d, want %d", i, got[i], want)
		}
	}
}

func TestSchedulerCancelStopsFutureFires(t *testing.T) {
	h := &fakeHandler{fn: func(seq int64) (Plan, error) { return Plan{Seq: seq, After: time.Hour}, nil }}
	s := newTestScheduler(t, h)

	s.Schedule("s1", 1, 20*time.Millisecond)
	if !s.Cancel("s1") {
		t.Fatalf("expected an armed timer")
	}
	if s.Cancel("s1") {
		t.Fatalf("second cancel should report nothing armed")
	}
	time.Sleep(60 * time.Millisecond)
	if n := len(h.seen()); n != 0 {
		t.Fatalf("cancelled timer fired %d times", n)
	}
}

func TestSchedulerIgnoresOlderSequence(t *testing.T) {
	h := &fakeHandler{fn: func(seq int64) (Plan, error) { return Plan{Stop: true}, nil }}
	s := newTestScheduler(t, h)

	s.Schedule("s1", 5, 10*time.Millisecond)
	s.Schedule("s1", 3, time.Millisecond)
	waitFor(t, "fire", func() bool { return len(h.seen()) == 1 })
	if got := h.seen()[0]; got != 5 {
		t.Fatalf("expected the newer sequence to win, got %d", got)
	}
}

func TestSchedulerRetriesAfterHandlerError(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	h := &fakeHandler{fn: func(seq int64) (Plan, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return Plan{}, errors.New("store unreachable")
		}
		return Plan{Stop: true}, nil
	}}
	s := newTestScheduler(t, h)

	s.Schedule("s1", 9, 5*time.Millisecond)
	waitFor(t, "recovery", func() bool { return len(h.seen()) == 3 })
	for _, seq := range h.seen() {
		if seq != 9 {
			t.Fatalf("retry must keep the nominal sequence, saw %d", seq)
		}
	}
}

func TestSchedulerCancelDuringCallbackPreventsReArm(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := &fakeHandler{fn: func(seq int64) (Plan, error) {
		close(entered)
		<-release
		return Plan{Seq: seq + 1, After: time.Millisecond}, nil
	}}
	s := newTestScheduler(t, h)

	s.Schedule("s1", 1, time.Millisecond)
	<-entered
	s.Cancel("s1")
	close(release)

	time.Sleep(30 * time.Millisecond)
	if s.Scheduled("s1") {
		t.Fatalf("timer re-armed after cancel")
	}
	if n := len(h.seen()); n != 1 {
		t.Fatalf("expected exactly one callback, got %d", n)
	}
}

func TestSchedulerIsolatesSessions(t *testing.T) {
	h := &fakeHandler{}
	h.fn = func(seq int64) (Plan, error) {
		if seq == 100 {
			panic("bad session")
		}
		return Plan{Stop: true}, nil
	}
	s := newTestScheduler(t, h)

	s.Schedule("bad", 100, time.Millisecond)
	s.Schedule("good", 1, 5*time.Millisecond)
	waitFor(t, "both sessions", func() bool { return len(h.seen()) == 2 })
	waitFor(t, "cleanup", func() bool { return s.Pending() == 0 })
}

func TestCloseDisarmsEverything(t *testing.T) {
	h := &fakeHandler{fn: func(seq int64) (Plan, error) { return Plan{Seq: seq, After: time.Millisecond}, nil }}
	s := NewScheduler(Options{})
	s.Attach(h)
	s.Schedule("a", 1, time.Hour)
	s.Schedule("b", 1, time.Hour)
	s.Close()
	if s.Pending() != 0 {
		t.Fatalf("pending = %d", s.Pending())
	}
	s.Schedule("c", 1, time.Millisecond)
	if s.Scheduled("c") {
		t.Fatalf("closed scheduler accepted a timer")
	}
}
