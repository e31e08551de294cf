package application

import (
	"context"
	"time"

	"github.com/example/scheduling-core/internal/persistence"
)

// RepositoryAdapter exposes a persistence.EventRepository through the
// EventRepository interface the service consumes.
type RepositoryAdapter struct {
	repo persistence.EventRepository
}

// NewRepositoryAdapter wraps repo.
func NewRepositoryAdapter(repo persistence.EventRepository) *RepositoryAdapter {
	return &RepositoryAdapter{repo: repo}
}

// CreateEvent stores event and returns it as persisted.
func (a *RepositoryAdapter) CreateEvent(ctx context.Context, event Event) (Event, error) {
	if err := a.repo.CreateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

// GetEvent loads a single event.
func (a *RepositoryAdapter) GetEvent(ctx context.Context, id string) (Event, error) {
	model, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	return toApplicationEvent(model), nil
}

// UpdateEvent writes event guarded by its version and returns the new state.
func (a *RepositoryAdapter) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	if err := a.repo.UpdateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

// DeleteEvent removes an event.
func (a *RepositoryAdapter) DeleteEvent(ctx context.Context, id string) error {
	return a.repo.DeleteEvent(ctx, id)
}

// ListEvents returns matching events.
func (a *RepositoryAdapter) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	models, err := a.repo.ListEvents(ctx, persistence.EventFilter{
		Module:     string(filter.Module),
		Type:       string(filter.Type),
		Status:     string(filter.Status),
		ResourceID: filter.ResourceID,
		AttendeeID: filter.AttendeeID,
		From:       cloneTime(filter.From),
		To:         cloneTime(filter.To),
	})
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

func toApplicationEvent(model persistence.Event) Event {
	return Event{
		ID:              model.ID,
		Title:           model.Title,
		Start:           model.Start,
		End:             model.End,
		Type:            EventType(model.Type),
		Module:          Module(model.Module),
		Location:        model.Location,
		Attendees:       cloneStrings(model.Attendees),
		Resources:       cloneStrings(model.Resources),
		Priority:        Priority(model.Priority),
		Status:          Status(model.Status),
		ReminderMinutes: cloneInt(model.ReminderMinutes),
		Version:         model.Version,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func toPersistenceEvent(event Event) persistence.Event {
	return persistence.Event{
		ID:              event.ID,
		Title:           event.Title,
		Start:           event.Start,
		End:             event.End,
		Type:            string(event.Type),
		Module:          string(event.Module),
		Location:        event.Location,
		Attendees:       cloneStrings(event.Attendees),
		Resources:       cloneStrings(event.Resources),
		Priority:        string(event.Priority),
		Status:          string(event.Status),
		ReminderMinutes: cloneInt(event.ReminderMinutes),
		Version:         event.Version,
		CreatedAt:       event.CreatedAt,
		UpdatedAt:       event.UpdatedAt,
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
