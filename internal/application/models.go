package application

import "time"

// EventType labels what kind of booking an event is. It is informational only.
type EventType string

const (
	EventTypeMeeting   EventType = "meeting"
	EventTypeSiteVisit EventType = "site-visit"
	EventTypeDeadline  EventType = "deadline"
	EventTypeInterview EventType = "interview"
	EventTypePlanning  EventType = "planning"
	EventTypeAdminTask EventType = "admin-task"
)

// Valid reports whether the type is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeMeeting, EventTypeSiteVisit, EventTypeDeadline, EventTypeInterview, EventTypePlanning, EventTypeAdminTask:
		return true
	}
	return false
}

// Module identifies the console area that owns an event. It is used for filtering.
type Module string

const (
	ModuleSales      Module = "sales"
	ModuleHR         Module = "hr"
	ModuleOperations Module = "operations"
	ModuleAdmin      Module = "admin"
)

// Valid reports whether the module is known.
func (m Module) Valid() bool {
	switch m {
	case ModuleSales, ModuleHR, ModuleOperations, ModuleAdmin:
		return true
	}
	return false
}

// Priority is advisory; it never affects conflict detection.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether the priority is known.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Event represents a persisted booking.
type Event struct {
	ID              string
	Title           string
	Start           time.Time
	End             time.Time
	Type            EventType
	Module          Module
	Location        string
	Attendees       []string
	Resources       []string
	Priority        Priority
	Status          Status
	ReminderMinutes *int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventInput captures caller provided fields for a new event or a preview.
type EventInput struct {
	ID              string
	Title           string
	Start           time.Time
	End             time.Time
	Type            EventType
	Module          Module
	Location        string
	Attendees       []string
	Resources       []string
	Priority        Priority
	Status          Status
	ReminderMinutes *int
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Input             EventInput
	OverrideConflicts bool
}

// EventPatch lists the fields an update replaces. Nil fields keep their stored
// value; ClearReminder removes the reminder entirely.
type EventPatch struct {
	Title           *string
	Start           *time.Time
	End             *time.Time
	Type            *EventType
	Module          *Module
	Location        *string
	Attendees       *[]string
	Resources       *[]string
	Priority        *Priority
	Status          *Status
	ReminderMinutes *int
	ClearReminder   bool
}

// UpdateEventParams wraps the data required to update an existing event.
type UpdateEventParams struct {
	EventID           string
	Patch             EventPatch
	OverrideConflicts bool
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Module     Module
	Type       EventType
	Status     Status
	ResourceID string
	AttendeeID string
	From       *time.Time
	To         *time.Time
}

// EventConflict describes one existing event colliding with a candidate.
type EventConflict struct {
	Event           Event
	Type            string
	SharedAttendees []string
	SharedResources []string
	Location        string
}

// ConflictReport is the outcome of conflict detection for a candidate.
type ConflictReport struct {
	HasConflict  bool
	ConflictType string
	LastSeenType string
	Conflicts    []EventConflict
	Suggestion   string
}

// UtilizationParams selects the resource and range to analyse.
type UtilizationParams struct {
	ResourceID string
	From       time.Time
	To         time.Time
	SlotSize   time.Duration
}

// AvailabilitySlot is one bucket of a resource calendar.
type AvailabilitySlot struct {
	Start       time.Time
	End         time.Time
	IsAvailable bool
}

// UtilizationReport summarises booked versus available time for a resource.
type UtilizationReport struct {
	ResourceID      string
	ResourceType    string
	From            time.Time
	To              time.Time
	UsedMinutes     float64
	TotalMinutes    float64
	UtilizationRate float64
	Availability    []AvailabilitySlot
	BookedEventIDs  []string
}
