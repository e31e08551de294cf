package persistence

import (
	"context"
	"time"
)

// EventFilter narrows event queries. Empty fields match everything. From and
// To select events whose window intersects [From, To).
type EventFilter struct {
	Module     string
	Type       string
	Status     string
	ResourceID string
	AttendeeID string
	From       *time.Time
	To         *time.Time
}

// EventRepository stores events together with their attendee and resource sets.
//
// UpdateEvent must only succeed when event.Version equals the stored version;
// the stored version is then incremented. ListEvents orders by start, then id.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Matches reports whether the event satisfies the filter. Storage backends that
// filter in memory share this predicate so results stay consistent.
func (f EventFilter) Matches(event Event) bool {
	if f.Module != "" && event.Module != f.Module {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Status != "" && event.Status != f.Status {
		return false
	}
	if f.From != nil && !event.End.After(*f.From) {
		return false
	}
	if f.To != nil && !event.Start.Before(*f.To) {
		return false
	}
	if f.ResourceID != "" && !containsString(event.Resources, f.ResourceID) {
		return false
	}
	if f.AttendeeID != "" && !containsString(event.Attendees, f.AttendeeID) {
		return false
	}
	return true
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
