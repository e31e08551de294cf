package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/scheduling-core/internal/application"
	"github.com/example/scheduling-core/internal/persistence"
)

var eventCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// EventFixture is a deterministic event that can be materialised as service
// input, an application event or a persistence row.
type EventFixture struct {
	ID              string
	Title           string
	Start           time.Time
	End             time.Time
	Type            application.EventType
	Module          application.Module
	Location        string
	Attendees       []string
	Resources       []string
	Priority        application.Priority
	Status          application.Status
	ReminderMinutes *int
	Version         int
	CreatedAt       time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a one hour sales meeting starting a day after the
// reference time, shifted by one hour per generated fixture so that fixtures
// do not overlap unless placed explicitly.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	id := fmt.Sprintf("event-%03d", idx)
	start := referenceTime.Add(24*time.Hour + time.Duration(idx)*time.Hour)
	fixture := EventFixture{
		ID:        id,
		Title:     fmt.Sprintf("Event %03d", idx),
		Start:     start,
		End:       start.Add(time.Hour),
		Type:      application.EventTypeMeeting,
		Module:    application.ModuleSales,
		Priority:  application.PriorityMedium,
		Status:    application.StatusScheduled,
		Version:   1,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated identifier. An empty id lets the service
// assign one.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventTitle overrides the generated title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventWindow places the event at [start, end).
func WithEventWindow(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventType overrides the event type.
func WithEventType(eventType application.EventType) EventOption {
	return func(f *EventFixture) {
		f.Type = eventType
	}
}

// WithEventModule overrides the owning module.
func WithEventModule(module application.Module) EventOption {
	return func(f *EventFixture) {
		f.Module = module
	}
}

// WithEventLocation sets the location.
func WithEventLocation(location string) EventOption {
	return func(f *EventFixture) {
		f.Location = location
	}
}

// WithEventAttendees replaces the attendee set.
func WithEventAttendees(attendees ...string) EventOption {
	return func(f *EventFixture) {
		f.Attendees = append([]string(nil), attendees...)
	}
}

// WithEventResources replaces the resource set.
func WithEventResources(resources ...string) EventOption {
	return func(f *EventFixture) {
		f.Resources = append([]string(nil), resources...)
	}
}

// WithEventPriority overrides the priority.
func WithEventPriority(priority application.Priority) EventOption {
	return func(f *EventFixture) {
		f.Priority = priority
	}
}

// WithEventStatus overrides the status.
func WithEventStatus(status application.Status) EventOption {
	return func(f *EventFixture) {
		f.Status = status
	}
}

// WithEventReminder sets the reminder lead time in minutes.
func WithEventReminder(minutes int) EventOption {
	return func(f *EventFixture) {
		f.ReminderMinutes = &minutes
	}
}

// Input converts the fixture into the payload accepted by CreateEvent.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		ID:              f.ID,
		Title:           f.Title,
		Start:           f.Start,
		End:             f.End,
		Type:            f.Type,
		Module:          f.Module,
		Location:        f.Location,
		Attendees:       cloneStrings(f.Attendees),
		Resources:       cloneStrings(f.Resources),
		Priority:        f.Priority,
		Status:          f.Status,
		ReminderMinutes: cloneInt(f.ReminderMinutes),
	}
}

// Application converts the fixture into an application.Event.
func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:              f.ID,
		Title:           f.Title,
		Start:           f.Start,
		End:             f.End,
		Type:            f.Type,
		Module:          f.Module,
		Location:        f.Location,
		Attendees:       cloneStrings(f.Attendees),
		Resources:       cloneStrings(f.Resources),
		Priority:        f.Priority,
		Status:          f.Status,
		ReminderMinutes: cloneInt(f.ReminderMinutes),
		Version:         f.Version,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Persistence converts the fixture into a persistence.Event row.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:              f.ID,
		Title:           f.Title,
		Start:           f.Start,
		End:             f.End,
		Type:            string(f.Type),
		Module:          string(f.Module),
		Location:        f.Location,
		Attendees:       cloneStrings(f.Attendees),
		Resources:       cloneStrings(f.Resources),
		Priority:        string(f.Priority),
		Status:          string(f.Status),
		ReminderMinutes: cloneInt(f.ReminderMinutes),
		Version:         f.Version,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
