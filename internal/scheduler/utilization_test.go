package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestUtilization(t *testing.T) {
	t.Parallel()

	t.Run("three hours inside an eight hour range", func(t *testing.T) {
		t.Parallel()

		events := []Event{{ID: "trip", Start: at(10, 0), End: at(13, 0), Resources: []string{"vehicle-1"}}}
		report, err := Utilization(events, "vehicle-1", Range{Start: at(8, 0), End: at(16, 0)}, 0)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}

		if report.UtilizationRate != 37.5 {
			t.Fatalf("expected 37.5, got %v", report.UtilizationRate)
		}
		if report.UsedMinutes != 180 || report.TotalMinutes != 480 {
			t.Fatalf("unexpected minutes used=%v total=%v", report.UsedMinutes, report.TotalMinutes)
		}
		if report.ResourceType != ResourceTypeVehicle {
			t.Fatalf("expected vehicle, got %q", report.ResourceType)
		}
		if len(report.Availability) != 8 {
			t.Fatalf("expected 8 hourly slots, got %d", len(report.Availability))
		}
		for i, slot := range report.Availability {
			booked := i >= 2 && i <= 4
			if slot.IsAvailable == booked {
				t.Fatalf("slot %d (%s): expected available=%v", i, slot.Start.Format("15:04"), !booked)
			}
		}
	})

	t.Run("idle resource is fully available", func(t *testing.T) {
		t.Parallel()

		events := []Event{{ID: "other", Start: at(9, 0), End: at(10, 0), Resources: []string{"R2"}}}
		report, err := Utilization(events, "R1", Range{Start: at(8, 0), End: at(12, 0)}, time.Hour)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if report.UtilizationRate != 0 || report.UsedMinutes != 0 {
			t.Fatalf("expected zero utilization, got %+v", report)
		}
		for _, slot := range report.Availability {
			if !slot.IsAvailable {
				t.Fatalf("expected every slot to be available, got %+v", slot)
			}
		}
	})

	t.Run("events extending past the range are clipped", func(t *testing.T) {
		t.Parallel()

		events := []Event{
			{ID: "early", Start: at(6, 0), End: at(9, 0), Resources: []string{"R1"}},
			{ID: "late", Start: at(11, 0), End: at(15, 0), Resources: []string{"R1"}},
		}
		report, err := Utilization(events, "R1", Range{Start: at(8, 0), End: at(12, 0)}, time.Hour)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if report.UsedMinutes != 120 {
			t.Fatalf("expected 120 used minutes, got %v", report.UsedMinutes)
		}
		if report.UtilizationRate != 50 {
			t.Fatalf("expected 50, got %v", report.UtilizationRate)
		}
		if len(report.BookedEventIDs) != 2 {
			t.Fatalf("expected both events to qualify, got %v", report.BookedEventIDs)
		}
	})

	t.Run("overlapping bookings are counted once", func(t *testing.T) {
		t.Parallel()

		events := []Event{
			{ID: "a", Start: at(8, 0), End: at(12, 0), Resources: []string{"R1"}},
			{ID: "b", Start: at(9, 0), End: at(13, 0), Resources: []string{"R1"}},
		}
		report, err := Utilization(events, "R1", Range{Start: at(8, 0), End: at(12, 0)}, time.Hour)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if report.UtilizationRate != 100 {
			t.Fatalf("expected 100, got %v", report.UtilizationRate)
		}
	})

	t.Run("rate is rounded to two decimals", func(t *testing.T) {
		t.Parallel()

		events := []Event{{ID: "a", Start: at(8, 0), End: at(8, 20), Resources: []string{"R1"}}}
		report, err := Utilization(events, "R1", Range{Start: at(8, 0), End: at(11, 0)}, time.Hour)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if report.UtilizationRate != 11.11 {
			t.Fatalf("expected 11.11, got %v", report.UtilizationRate)
		}
	})

	t.Run("last slot is truncated to the range", func(t *testing.T) {
		t.Parallel()

		report, err := Utilization(nil, "R1", Range{Start: at(8, 0), End: at(9, 30)}, time.Hour)
		if err != nil {
			t.Fatalf("Utilization returned error: %v", err)
		}
		if len(report.Availability) != 2 {
			t.Fatalf("expected 2 slots, got %d", len(report.Availability))
		}
		if last := report.Availability[1]; !last.End.Equal(at(9, 30)) {
			t.Fatalf("expected last slot to end at 09:30, got %s", last.End.Format("15:04"))
		}
	})

	t.Run("empty and inverted ranges are rejected", func(t *testing.T) {
		t.Parallel()

		for _, rng := range []Range{
			{Start: at(9, 0), End: at(9, 0)},
			{Start: at(10, 0), End: at(9, 0)},
		} {
			if _, err := Utilization(nil, "R1", rng, time.Hour); !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("expected ErrInvalidRange for %+v, got %v", rng, err)
			}
		}
	})

	t.Run("slot explosion is rejected", func(t *testing.T) {
		t.Parallel()

		rng := Range{Start: at(0, 0), End: at(0, 0).AddDate(1, 0, 0)}
		if _, err := Utilization(nil, "R1", rng, time.Minute); !errors.Is(err, ErrTooManySlots) {
			t.Fatalf("expected ErrTooManySlots, got %v", err)
		}
	})
}

func TestInferResourceType(t *testing.T) {
	t.Parallel()

	cases := map[string]ResourceType{
		"R1":             ResourceTypeRoom,
		"room-boardroom": ResourceTypeRoom,
		"vehicle-1":      ResourceTypeVehicle,
		"fleet-van-07":   ResourceTypeVehicle,
		"projector-2":    ResourceTypeEquipment,
		"equipment-lab":  ResourceTypeEquipment,
		"staff-nurse-3":  ResourceTypePersonnel,
		"":               ResourceTypeUnknown,
		"zeta":           ResourceTypeUnknown,
	}
	for id, want := range cases {
		if got := InferResourceType(id); got != want {
			t.Errorf("InferResourceType(%q) = %q, want %q", id, got, want)
		}
	}
}
