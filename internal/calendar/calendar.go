// Package calendar renders events as an iCalendar feed.
package calendar

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// ErrEmptyCalendar is returned when there is nothing to encode.
var ErrEmptyCalendar = errors.New("calendar: no entries")

// Entry is one VEVENT of the feed.
type Entry struct {
	UID      string
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
	Status   string
	Category string
}

// Encode writes entries as a VCALENDAR. stamp becomes DTSTAMP on every event.
func Encode(w io.Writer, prodID string, entries []Entry, stamp time.Time) error {
	if len(entries) == 0 {
		return ErrEmptyCalendar
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	for _, entry := range entries {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, entry.UID)
		event.Props.SetText(ical.PropSummary, entry.Summary)
		if entry.Location != "" {
			event.Props.SetText(ical.PropLocation, entry.Location)
		}
		if status := icalStatus(entry.Status); status != "" {
			event.Props.SetText(ical.PropStatus, status)
		}
		if entry.Category != "" {
			event.Props.SetText(ical.PropCategories, strings.ToUpper(entry.Category))
		}
		event.Props.SetDateTime(ical.PropDateTimeStart, entry.Start.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, entry.End.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		cal.Children = append(cal.Children, event.Component)
	}

	return ical.NewEncoder(w).Encode(cal)
}

// icalStatus maps lifecycle states onto the RFC 5545 VEVENT statuses.
func icalStatus(status string) string {
	switch status {
	case "scheduled", "rescheduled":
		return "TENTATIVE"
	case "confirmed", "completed":
		return "CONFIRMED"
	case "cancelled":
		return "CANCELLED"
	}
	return ""
}
