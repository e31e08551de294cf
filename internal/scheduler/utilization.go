package scheduler

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidRange is returned when a utilization range is empty or inverted.
	ErrInvalidRange = errors.New("scheduler: range end must be after start")
	// ErrTooManySlots is returned when the requested slot size would split the range into more than MaxSlots buckets.
	ErrTooManySlots = errors.New("scheduler: too many availability slots")
)

const (
	// DefaultSlotSize is the availability bucket used when none is supplied.
	DefaultSlotSize = time.Hour
	// MaxSlots bounds the availability sequence for a single report.
	MaxSlots = 10000
)

// Range is a half-open time window [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ResourceType classifies a resource from its identifier. It is informational only.
type ResourceType string

const (
	ResourceTypeRoom      ResourceType = "room"
	ResourceTypeVehicle   ResourceType = "vehicle"
	ResourceTypeEquipment ResourceType = "equipment"
	ResourceTypePersonnel ResourceType = "personnel"
	ResourceTypeUnknown   ResourceType = "unknown"
)

var shortRoomID = regexp.MustCompile(`^r(oom)?[-_]?\d+$`)

// InferResourceType guesses the resource category from naming conventions such
// as "room-3", "R1", "vehicle-1" or "projector-2".
func InferResourceType(resourceID string) ResourceType {
	id := strings.ToLower(strings.TrimSpace(resourceID))
	switch {
	case id == "":
		return ResourceTypeUnknown
	case strings.Contains(id, "room") || shortRoomID.MatchString(id):
		return ResourceTypeRoom
	case containsAny(id, "vehicle", "van", "car", "truck", "fleet"):
		return ResourceTypeVehicle
	case containsAny(id, "equip", "projector", "device", "laptop", "kit"):
		return ResourceTypeEquipment
	case containsAny(id, "staff", "person", "employee", "emp-", "crew"):
		return ResourceTypePersonnel
	default:
		return ResourceTypeUnknown
	}
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

// Slot is one availability bucket of a resource calendar.
type Slot struct {
	Start       time.Time
	End         time.Time
	IsAvailable bool
}

// UtilizationReport summarises how much of a range a resource is booked.
type UtilizationReport struct {
	ResourceID      string
	ResourceType    ResourceType
	Range           Range
	UsedMinutes     float64
	TotalMinutes    float64
	UtilizationRate float64
	Availability    []Slot
	BookedEventIDs  []string
}

// Utilization computes booked versus available time for resourceID within rng.
// Events not requiring the resource or outside the range are ignored. Windows
// of overlapping bookings are merged before summing so the rate stays within
// [0, 100]. A non-positive slotSize selects DefaultSlotSize.
func Utilization(events []Event, resourceID string, rng Range, slotSize time.Duration) (UtilizationReport, error) {
	if !rng.End.After(rng.Start) {
		return UtilizationReport{}, ErrInvalidRange
	}
	if slotSize <= 0 {
		slotSize = DefaultSlotSize
	}
	total := rng.Duration()
	if slots := (total + slotSize - 1) / slotSize; slots > MaxSlots {
		return UtilizationReport{}, ErrTooManySlots
	}

	var booked []Range
	var ids []string
	for _, event := range events {
		if !containsResource(event.Resources, resourceID) {
			continue
		}
		if !Overlaps(event.Start, event.End, rng.Start, rng.End) {
			continue
		}
		booked = append(booked, clip(Range{Start: event.Start, End: event.End}, rng))
		ids = append(ids, event.ID)
	}

	merged := mergeRanges(booked)
	var used time.Duration
	for _, r := range merged {
		used += r.Duration()
	}

	report := UtilizationReport{
		ResourceID:      resourceID,
		ResourceType:    InferResourceType(resourceID),
		Range:           rng,
		UsedMinutes:     used.Minutes(),
		TotalMinutes:    total.Minutes(),
		UtilizationRate: roundTo(float64(used)/float64(total)*100, 2),
		Availability:    buildSlots(rng, slotSize, merged),
		BookedEventIDs:  ids,
	}
	return report, nil
}

func containsResource(resources []string, resourceID string) bool {
	for _, resource := range resources {
		if resource == resourceID {
			return true
		}
	}
	return false
}

func clip(r, bounds Range) Range {
	if r.Start.Before(bounds.Start) {
		r.Start = bounds.Start
	}
	if r.End.After(bounds.End) {
		r.End = bounds.End
	}
	return r
}

func mergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start.After(last.End) {
			merged = append(merged, r)
			continue
		}
		if r.End.After(last.End) {
			last.End = r.End
		}
	}
	return merged
}

// buildSlots walks the range in slotSize steps; the final slot is cut at the range end.
func buildSlots(rng Range, slotSize time.Duration, booked []Range) []Slot {
	slots := make([]Slot, 0, int((rng.Duration()+slotSize-1)/slotSize))
	for start := rng.Start; start.Before(rng.End); start = start.Add(slotSize) {
		end := start.Add(slotSize)
		if end.After(rng.End) {
			end = rng.End
		}
		available := true
		for _, r := range booked {
			if Overlaps(start, end, r.Start, r.End) {
				available = false
				break
			}
		}
		slots = append(slots, Slot{Start: start, End: end, IsAvailable: available})
	}
	return slots
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
