// Package memory provides a process-local event store used when no database
// is configured and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/scheduling-core/internal/persistence"
)

// Storage keeps events in a map guarded by a read-write mutex. Every value
// crossing the boundary is cloned.
type Storage struct {
	mu     sync.RWMutex
	events map[string]persistence.Event
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{events: make(map[string]persistence.Event)}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
	}
	if !event.Start.Before(event.End) {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrConstraintViolation)
	}

	stored := event.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.events[event.ID] = stored
	return nil
}

// UpdateEvent replaces an event when event.Version matches the stored version.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[event.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if current.Version != event.Version {
		return fmt.Errorf("memory: event %s at version %d, got %d: %w", event.ID, current.Version, event.Version, persistence.ErrVersionConflict)
	}
	if !event.Start.Before(event.End) {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrConstraintViolation)
	}

	stored := event.Clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	s.events[event.ID] = stored
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return event.Clone(), nil
}

// ListEvents returns events matching the filter ordered by start, then id.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if !filter.Matches(event) {
			continue
		}
		events = append(events, event.Clone())
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})

	return events, nil
}

// DeleteEvent removes an event.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

var _ persistence.EventRepository = (*Storage)(nil)
