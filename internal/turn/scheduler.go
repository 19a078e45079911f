// Package turn drives the hint/guess cadence of running sessions.
//
// Each session has at most one armed timer. A timer carries the turn sequence
// it was armed for; the handler treats a mismatch as stale and writes nothing,
// so an explicit turn change racing a firing timer yields a single transition.
package turn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Plan tells the scheduler what to do after a timer fired.
type Plan struct {
	Seq   int64
	After time.Duration
	Stop  bool
}

// Handler performs the timed transition for one session.
type Handler interface {
	OnTurnTimer(ctx context.Context, sessionID string, expectedSeq int64) (Plan, error)
}

type Options struct {
	// Workers bounds how many timer callbacks run at once.
	Workers int
	// FireTimeout bounds a single callback, store I/O included.
	FireTimeout time.Duration
	Logger      *zap.Logger
}

type entry struct {
	gen   uint64
	seq   int64
	after time.Duration
	timer *time.Timer
}

type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	closed  bool
	handler Handler

	sem         chan struct{}
	stop        chan struct{}
	wg          sync.WaitGroup
	fireTimeout time.Duration
	logger      *zap.Logger
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.FireTimeout <= 0 {
		opts.FireTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		entries:     make(map[string]*entry),
		sem:         make(chan struct{}, opts.Workers),
		stop:        make(chan struct{}),
		fireTimeout: opts.FireTimeout,
		logger:      opts.Logger,
	}
}

// Attach sets the handler invoked when timers fire.
func (s *Scheduler) Attach(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Schedule arms (or re-arms) the session timer to fire after d for turn seq.
// A request for an older seq than the one already armed is ignored.
func (s *Scheduler) Schedule(sessionID string, seq int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if cur, ok := s.entries[sessionID]; ok && seq < cur.seq {
		return
	}
	s.armLocked(sessionID, seq, d)
}

// Cancel disarms the session timer. It reports whether one was armed.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, sessionID)
	return true
}

// Scheduled reports whether a timer is armed for the session.
func (s *Scheduler) Scheduled(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[sessionID]
	return ok
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close disarms every timer and waits for running callbacks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) armLocked(sessionID string, seq int64, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	if old, ok := s.entries[sessionID]; ok {
		old.timer.Stop()
	}
	s.gen++
	e := &entry{gen: s.gen, seq: seq, after: d}
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { s.fire(sessionID, gen) })
	s.entries[sessionID] = e
}

func (s *Scheduler) fire(sessionID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok || e.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	seq, after, h := e.seq, e.after, s.handler
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
	case <-s.stop:
		return
	}
	plan, err := s.run(h, sessionID, seq)
	<-s.sem

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[sessionID]
	if !ok || cur.gen != gen || s.closed {
		// cancelled or re-armed while the callback ran
		return
	}
	if err != nil {
		s.logger.Warn("turn_timer_error",
			zap.String("session_id", sessionID),
			zap.Int64("turn_seq", seq),
			zap.Duration("retry_in", after),
			zap.Error(err))
		s.armLocked(sessionID, seq, after)
		return
	}
	if plan.Stop {
		delete(s.entries, sessionID)
		return
	}
	s.armLocked(sessionID, plan.Seq, plan.After)
}

func (s *Scheduler) run(h Handler, sessionID string, seq int64) (plan Plan, err error) {
	if h == nil {
		return Plan{Stop: true}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn_timer_panic", zap.String("session_id", sessionID), zap.Any("panic", r))
			plan, err = Plan{Stop: true}, nil
		}
	}()
	return h.OnTurnTimer(ctx, sessionID, seq)
}
