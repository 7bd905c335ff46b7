package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Scheduler is a cooperative event loop. Tasks run one at a time on the
// goroutine that calls Run; timers and foreign goroutines only enqueue.
type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	timers  map[string]*timer
	queue   []func()
	stopped bool

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once

	Clock clockwork.Clock
}

type timer struct {
	t clockwork.Timer
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		log:    log.With(zap.String("component", "scheduler")),
		timers: make(map[string]*timer),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		Clock:  clockwork.NewRealClock(),
	}
}

// Post enqueues fn for execution on the loop. It never blocks, so tasks may
// post follow-up work. It reports false when the loop has already stopped
// and fn was dropped.
func (s *Scheduler) Post(fn func()) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Scheduler) next() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.queue) == 0 {
		return nil
	}
	fn := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return fn
}

// AfterFunc registers a one-shot timer. When it fires, fn is posted to the
// loop. A timer registered under an existing name replaces it.
func (s *Scheduler) AfterFunc(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, exists := s.timers[name]; exists && old.t != nil {
		old.t.Stop()
	}
	entry := &timer{}
	s.timers[name] = entry
	s.mu.Unlock()

	// The clock may run the callback before AfterFunc returns, so the entry
	// is published first and the timer handle attached afterwards.
	t := s.Clock.AfterFunc(d, func() { s.fire(name, entry, fn) })

	s.mu.Lock()
	entry.t = t
	if s.timers[name] != entry {
		t.Stop()
	}
	s.mu.Unlock()
	s.log.Debug("Timer registered", zap.String("timer", name), zap.Duration("after", d))
}

func (s *Scheduler) fire(name string, entry *timer, fn func()) {
	s.mu.Lock()
	if s.timers[name] != entry {
		s.mu.Unlock()
		return // Cancelled or replaced
	}
	delete(s.timers, name)
	s.mu.Unlock()

	s.log.Debug("Timer fired", zap.String("timer", name))
	s.Post(fn)
}

// Cancel stops the named timer if it has not fired yet.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, exists := s.timers[name]; exists {
		if entry.t != nil {
			entry.t.Stop()
		}
		delete(s.timers, name)
		s.log.Debug("Timer cancelled", zap.String("timer", name))
	}
}

// Pending returns the names of timers that have not fired, sorted.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes posted tasks until Stop is called or ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-s.wake:
			for fn := s.next(); fn != nil; fn = s.next() {
				fn()
				if ctx.Err() != nil {
					s.Stop()
					return ctx.Err()
				}
			}
		}
	}
}

// Stop cancels every timer and ends Run. Safe to call more than once and
// from inside a task.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.queue = nil
		for name, entry := range s.timers {
			if entry.t != nil {
				entry.t.Stop()
			}
			delete(s.timers, name)
		}
		s.mu.Unlock()
		close(s.stopCh)
		s.log.Debug("Event loop stopped")
	})
}

// Done is closed once the loop has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopCh
}
