package scheduler

import (
	"sort"
	"time"
)

// Event is the subset of a booking the detector needs. Callers drop events
// that no longer occupy time (cancelled, completed) before calling in.
type Event struct {
	ID        string
	Start     time.Time
	End       time.Time
	Location  string
	Attendees []string
	Resources []string
}

// ConflictType describes the type of conflict detected between events.
type ConflictType string

const (
	// ConflictTypeNone is reported when nothing overlaps.
	ConflictTypeNone ConflictType = ""
	// ConflictTypeAttendee indicates an attendee is double-booked.
	ConflictTypeAttendee ConflictType = "attendee-conflict"
	// ConflictTypeResource indicates a resource is double-booked.
	ConflictTypeResource ConflictType = "resource-conflict"
	// ConflictTypeLocation indicates two overlapping events share a location.
	ConflictTypeLocation ConflictType = "location-conflict"
	// ConflictTypeTime indicates a plain time overlap with nothing shared.
	ConflictTypeTime ConflictType = "time-overlap"
)

// precedence ranks categories; lower wins.
func (t ConflictType) precedence() int {
	switch t {
	case ConflictTypeAttendee:
		return 0
	case ConflictTypeResource:
		return 1
	case ConflictTypeLocation:
		return 2
	case ConflictTypeTime:
		return 3
	default:
		return 4
	}
}

// Suggestion returns the remediation hint shown for the category.
func (t ConflictType) Suggestion() string {
	switch t {
	case ConflictTypeNone:
		return ""
	case ConflictTypeAttendee:
		return "reschedule or change attendees"
	case ConflictTypeResource:
		return "book alternate resource or time slot"
	case ConflictTypeLocation:
		return "choose different location or reschedule"
	default:
		return "adjust timing to avoid overlap"
	}
}

// Conflict details one overlapping event and why it collides with the candidate.
type Conflict struct {
	WithEventID string
	Type        ConflictType
	Attendees   []string
	Resources   []string
	Location    string
}

// Report aggregates the conflicts found for a candidate.
//
// ConflictType summarises the report with the highest-precedence category among
// Conflicts. LastSeenType is the category of the last conflict in scan order,
// kept for callers that still read the older summary field.
type Report struct {
	HasConflict  bool
	Conflicts    []Conflict
	ConflictType ConflictType
	LastSeenType ConflictType
	Suggestion   string
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching windows do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// DetectConflicts identifies conflicts for the candidate event against existing
// ones. Each overlapping event yields exactly one Conflict, classified in the
// order attendee, resource, location, time. A candidate without a complete
// window cannot be evaluated and yields an empty report.
func DetectConflicts(existing []Event, candidate Event) Report {
	if candidate.Start.IsZero() || candidate.End.IsZero() {
		return Report{}
	}

	attendees := toSet(candidate.Attendees)
	resources := toSet(candidate.Resources)

	var report Report
	for _, event := range existing {
		if candidate.ID != "" && event.ID == candidate.ID {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, event.Start, event.End) {
			continue
		}

		conflict := classify(event, attendees, resources, candidate.Location)
		report.Conflicts = append(report.Conflicts, conflict)
		report.LastSeenType = conflict.Type
		if report.ConflictType == ConflictTypeNone || conflict.Type.precedence() < report.ConflictType.precedence() {
			report.ConflictType = conflict.Type
		}
	}

	report.HasConflict = len(report.Conflicts) > 0
	report.Suggestion = report.ConflictType.Suggestion()
	return report
}

func classify(event Event, attendees, resources map[string]struct{}, location string) Conflict {
	conflict := Conflict{WithEventID: event.ID}

	if shared := intersect(event.Attendees, attendees); len(shared) > 0 {
		conflict.Type = ConflictTypeAttendee
		conflict.Attendees = shared
		return conflict
	}
	if shared := intersect(event.Resources, resources); len(shared) > 0 {
		conflict.Type = ConflictTypeResource
		conflict.Resources = shared
		return conflict
	}
	if location != "" && event.Location == location {
		conflict.Type = ConflictTypeLocation
		conflict.Location = location
		return conflict
	}

	conflict.Type = ConflictTypeTime
	return conflict
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		set[value] = struct{}{}
	}
	return set
}

func intersect(values []string, set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var shared []string
	for _, value := range values {
		if _, ok := set[value]; !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		shared = append(shared, value)
	}
	sort.Strings(shared)
	return shared
}
