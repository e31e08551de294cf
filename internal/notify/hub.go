// Package notify is the subscription point between the scheduling core and
// notification transports. The core publishes, transports subscribe.
//
// Subscribers run synchronously on the publishing goroutine. They must not
// call back into the core for the same event, and should hand slow work off
// to their own goroutines.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ChangeKind names the store mutation behind an EventChanged signal.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// EventChanged is published after every committed create, update or delete.
type EventChanged struct {
	Kind       ChangeKind
	EventID    string
	Title      string
	Module     string
	Start      time.Time
	End        time.Time
	Status     string
	Attendees  []string
	Resources  []string
	OccurredAt time.Time
}

// ReminderDue is published when a reminder fires for a still-active event.
type ReminderDue struct {
	EventID string
	Title   string
	Start   time.Time
	FireAt  time.Time
}

// EventChangedFunc receives change signals.
type EventChangedFunc func(ctx context.Context, change EventChanged) error

// ReminderDueFunc receives due reminders.
type ReminderDueFunc func(ctx context.Context, due ReminderDue) error

// Hub fans signals out to registered subscribers.
type Hub struct {
	logger *slog.Logger

	mu        sync.RWMutex
	nextID    uint64
	changes   map[uint64]EventChangedFunc
	reminders map[uint64]ReminderDueFunc
}

// NewHub returns an empty hub. A nil logger selects slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger,
		changes:   make(map[uint64]EventChangedFunc),
		reminders: make(map[uint64]ReminderDueFunc),
	}
}

// OnEventChanged registers fn and returns a function that removes it.
func (h *Hub) OnEventChanged(fn EventChangedFunc) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.changes[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.changes, id)
		h.mu.Unlock()
	}
}

// OnReminderDue registers fn and returns a function that removes it.
func (h *Hub) OnReminderDue(fn ReminderDueFunc) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.reminders[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.reminders, id)
		h.mu.Unlock()
	}
}

// PublishEventChanged delivers change to every subscriber. Subscriber errors
// and panics are logged; the committed change is never rolled back.
func (h *Hub) PublishEventChanged(ctx context.Context, change EventChanged) {
	if h == nil {
		return
	}
	for _, fn := range h.changeSubscribers() {
		if err := safeCall(func() error { return fn(ctx, change) }); err != nil {
			h.logger.Warn("event change subscriber failed",
				"event_id", change.EventID,
				"kind", string(change.Kind),
				"error", err,
			)
		}
	}
}

// PublishReminderDue delivers due to every subscriber and joins their errors.
func (h *Hub) PublishReminderDue(ctx context.Context, due ReminderDue) error {
	if h == nil {
		return nil
	}
	var errs []error
	for _, fn := range h.reminderSubscribers() {
		if err := safeCall(func() error { return fn(ctx, due) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) changeSubscribers() []EventChangedFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]EventChangedFunc, 0, len(h.changes))
	for id := uint64(1); id <= h.nextID; id++ {
		if fn, ok := h.changes[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (h *Hub) reminderSubscribers() []ReminderDueFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ReminderDueFunc, 0, len(h.reminders))
	for id := uint64(1); id <= h.nextID; id++ {
		if fn, ok := h.reminders[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: subscriber panic: %v", r)
		}
	}()
	return fn()
}
