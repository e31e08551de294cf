// Package reminder arms cancellable per-event reminder timers.
//
// A reminder fires at the event start minus its lead time. Cancelling a
// reminder is idempotent and, once Cancel or CancelEvent returns, the dispatch
// has either completed or will never happen. Dispatchers must not call back
// into the Scheduler for the same event from inside the dispatch.
package reminder

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Clock abstracts time so tests can drive timers deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Event carries the fields needed to compute and describe a reminder.
type Event struct {
	ID              string
	Title           string
	Start           time.Time
	ReminderMinutes *int
}

// FireAt returns the reminder instant and whether the event asks for one.
func (e Event) FireAt() (time.Time, bool) {
	if e.ReminderMinutes == nil || e.ID == "" {
		return time.Time{}, false
	}
	return e.Start.Add(-time.Duration(*e.ReminderMinutes) * time.Minute), true
}

// Due is handed to the dispatcher when a reminder fires.
type Due struct {
	EventID string
	Title   string
	Start   time.Time
	FireAt  time.Time
}

// Dispatcher delivers a due reminder.
type Dispatcher func(ctx context.Context, due Due) error

// Verifier reports whether the event still warrants a reminder at fire time.
type Verifier func(ctx context.Context, eventID string) (bool, error)

// Handle identifies one armed reminder.
type Handle struct {
	EventID string
	FireAt  time.Time
	seq     uint64
}

// IsZero reports whether the handle refers to nothing.
func (h Handle) IsZero() bool {
	return h.EventID == "" && h.seq == 0
}

type entry struct {
	mu     sync.Mutex
	handle Handle
	due    Due
	stop   func() bool
	done   bool
}

// Scheduler owns the armed reminders, keyed by event id.
type Scheduler struct {
	clock    Clock
	dispatch Dispatcher
	verify   Verifier
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	stopped bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithVerifier installs the fire-time existence check.
func WithVerifier(verify Verifier) Option {
	return func(s *Scheduler) {
		s.verify = verify
	}
}

// WithLogger sets the logger used for dispatch outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatchTimeout bounds how long a single dispatch may run.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// New constructs a Scheduler. A nil clock selects SystemClock.
func New(clock Clock, dispatch Dispatcher, opts ...Option) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	s := &Scheduler{
		clock:    clock,
		dispatch: dispatch,
		logger:   slog.Default(),
		timeout:  10 * time.Second,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms a reminder for the event, replacing any reminder already armed
// for the same id. It returns false and leaves nothing armed when the event has
// no reminder or its fire time is not in the future.
func (s *Scheduler) Schedule(event Event) (Handle, bool) {
	if s == nil {
		return Handle{}, false
	}
	fireAt, ok := event.FireAt()
	now := s.clock.Now()
	if !ok || !fireAt.After(now) {
		s.CancelEvent(event.ID)
		return Handle{}, false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Handle{}, false
	}
	s.seq++
	e := &entry{
		handle: Handle{EventID: event.ID, FireAt: fireAt, seq: s.seq},
		due:    Due{EventID: event.ID, Title: event.Title, Start: event.Start, FireAt: fireAt},
	}
	previous := s.entries[event.ID]
	s.entries[event.ID] = e
	s.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}

	e.mu.Lock()
	if !e.done {
		e.stop = s.clock.AfterFunc(fireAt.Sub(now), func() { s.fire(e) })
	}
	e.mu.Unlock()

	return e.handle, true
}

// Cancel disarms the reminder identified by handle. Stale handles, whose
// reminder was replaced or already fired, are ignored.
func (s *Scheduler) Cancel(handle Handle) {
	if s == nil || handle.IsZero() {
		return
	}
	s.mu.Lock()
	e, ok := s.entries[handle.EventID]
	if !ok || e.handle.seq != handle.seq {
		s.mu.Unlock()
		return
	}
	delete(s.entries, handle.EventID)
	s.mu.Unlock()

	e.cancel()
}

// CancelEvent disarms whatever reminder is armed for eventID and reports
// whether one was pending.
func (s *Scheduler) CancelEvent(eventID string) bool {
	if s == nil || eventID == "" {
		return false
	}
	s.mu.Lock()
	e, ok := s.entries[eventID]
	if ok {
		delete(s.entries, eventID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	return e.cancel()
}

// Reschedule cancels handle and arms a reminder for the updated event.
func (s *Scheduler) Reschedule(handle Handle, event Event) (Handle, bool) {
	s.Cancel(handle)
	return s.Schedule(event)
}

// Lookup returns the handle armed for eventID.
func (s *Scheduler) Lookup(eventID string) (Handle, bool) {
	if s == nil {
		return Handle{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[eventID]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// Pending lists armed reminders ordered by fire time.
func (s *Scheduler) Pending() []Handle {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.entries))
	for _, e := range s.entries {
		handles = append(handles, e.handle)
	}
	s.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool {
		if handles[i].FireAt.Equal(handles[j].FireAt) {
			return handles[i].EventID < handles[j].EventID
		}
		return handles[i].FireAt.Before(handles[j].FireAt)
	})
	return handles
}

// Stop cancels every armed reminder; later Schedule calls are no-ops.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.stopped = true
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
}

// cancel marks the entry done, waiting for an in-flight dispatch to finish.
func (e *entry) cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return false
	}
	e.done = true
	if e.stop != nil {
		e.stop()
	}
	return true
}

func (s *Scheduler) fire(e *entry) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	s.deliver(e.due)
	e.mu.Unlock()

	s.mu.Lock()
	if current, ok := s.entries[e.handle.EventID]; ok && current == e {
		delete(s.entries, e.handle.EventID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) deliver(due Due) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger := s.logger.With("event_id", due.EventID, "fire_at", due.FireAt)

	if s.verify != nil {
		ok, err := s.verify(ctx, due.EventID)
		if err != nil {
			logger.Error("reminder verification failed", "error", err)
			return
		}
		if !ok {
			logger.Info("reminder skipped, event no longer active")
			return
		}
	}

	if s.dispatch == nil {
		return
	}
	if err := s.dispatch(ctx, due); err != nil {
		logger.Error("reminder dispatch failed", "error", err)
		return
	}
	logger.Debug("reminder dispatched")
}
