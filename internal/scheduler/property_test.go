package scheduler

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

var propertyBase = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

func drawWindow(t *rapid.T, label string) (time.Time, time.Time) {
	start := rapid.IntRange(0, 24*60).Draw(t, label+"_start")
	length := rapid.IntRange(1, 8*60).Draw(t, label+"_length")
	s := propertyBase.Add(time.Duration(start) * time.Minute)
	return s, s.Add(time.Duration(length) * time.Minute)
}

func TestDetectConflictsOverlapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		aStart, aEnd := drawWindow(t, "a")
		bStart, bEnd := drawWindow(t, "b")
		people := rapid.SliceOfN(rapid.SampledFrom([]string{"raj", "priya", "li", "ana"}), 0, 3)

		existing := []Event{{ID: "A", Start: aStart, End: aEnd, Attendees: people.Draw(t, "a_people")}}
		candidate := Event{Start: bStart, End: bEnd, Attendees: people.Draw(t, "b_people")}

		want := bStart.Before(aEnd) && bEnd.After(aStart)
		report := DetectConflicts(existing, candidate)
		if report.HasConflict != want {
			t.Fatalf("overlap=%v but HasConflict=%v", want, report.HasConflict)
		}
		if report.HasConflict && len(report.Conflicts) != 1 {
			t.Fatalf("an event must be reported exactly once, got %d", len(report.Conflicts))
		}
	})
}

func TestUtilizationBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 6).Draw(t, "count")
		events := make([]Event, 0, count)
		for i := 0; i < count; i++ {
			start, end := drawWindow(t, "event")
			resource := rapid.SampledFrom([]string{"R1", "R2"}).Draw(t, "resource")
			events = append(events, Event{ID: string(rune('a' + i)), Start: start, End: end, Resources: []string{resource}})
		}
		rngStart, rngEnd := drawWindow(t, "range")

		report, err := Utilization(events, "R1", Range{Start: rngStart, End: rngEnd}, 30*time.Minute)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if report.UtilizationRate < 0 || report.UtilizationRate > 100 {
			t.Fatalf("rate out of bounds: %v", report.UtilizationRate)
		}
		if report.UsedMinutes > report.TotalMinutes {
			t.Fatalf("used %v exceeds total %v", report.UsedMinutes, report.TotalMinutes)
		}
		if len(report.BookedEventIDs) == 0 {
			if report.UtilizationRate != 0 {
				t.Fatalf("idle resource reported %v", report.UtilizationRate)
			}
			for _, slot := range report.Availability {
				if !slot.IsAvailable {
					t.Fatalf("idle resource has booked slot %+v", slot)
				}
			}
		}
	})
}
