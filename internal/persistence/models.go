package persistence

import "time"

// Event represents a booking stored in persistence. Enumerations are kept as
// plain strings; the application layer owns their meaning.
type Event struct {
	ID              string
	Title           string
	Start           time.Time
	End             time.Time
	Type            string
	Module          string
	Location        string
	Attendees       []string
	Resources       []string
	Priority        string
	Status          string
	ReminderMinutes *int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers never share slices with storage.
func (e Event) Clone() Event {
	out := e
	if e.Attendees != nil {
		out.Attendees = append([]string(nil), e.Attendees...)
	}
	if e.Resources != nil {
		out.Resources = append([]string(nil), e.Resources...)
	}
	if e.ReminderMinutes != nil {
		minutes := *e.ReminderMinutes
		out.ReminderMinutes = &minutes
	}
	return out
}
