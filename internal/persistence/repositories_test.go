package persistence_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/example/scheduling-core/internal/persistence"
	"github.com/example/scheduling-core/internal/persistence/memory"
	"github.com/example/scheduling-core/internal/testfixtures"
)

type backend struct {
	name string
	open func(t *testing.T) persistence.EventRepository
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) persistence.EventRepository { return memory.New() }},
		{name: "sqlite", open: func(t *testing.T) persistence.EventRepository { return testfixtures.NewSQLiteHarness(t).Events }},
	}
}

func newPersistenceEvent(opts ...testfixtures.EventOption) persistence.Event {
	return testfixtures.NewEventFixture(opts...).Persistence()
}

func eventIDs(events []persistence.Event) []string {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	return ids
}

func TestEventRepositoryContract(t *testing.T) {
	t.Parallel()

	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			t.Run("creates, reads, updates, and deletes events", func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				repo := b.open(t)

				event := newPersistenceEvent(
					testfixtures.WithEventID("evt-crud"),
					testfixtures.WithEventAttendees("alice", "bob"),
					testfixtures.WithEventResources("room-1"),
					testfixtures.WithEventReminder(15),
				)
				if err := repo.CreateEvent(ctx, event); err != nil {
					t.Fatalf("CreateEvent: %v", err)
				}

				got, err := repo.GetEvent(ctx, "evt-crud")
				if err != nil {
					t.Fatalf("GetEvent: %v", err)
				}
				if got.Title != event.Title || !got.Start.Equal(event.Start) || got.Version != 1 {
					t.Fatalf("unexpected event: %+v", got)
				}
				if !slices.Equal(got.Attendees, []string{"alice", "bob"}) || !slices.Equal(got.Resources, []string{"room-1"}) {
					t.Fatalf("unexpected links: %v %v", got.Attendees, got.Resources)
				}

				got.Status = "confirmed"
				if err := repo.UpdateEvent(ctx, got); err != nil {
					t.Fatalf("UpdateEvent: %v", err)
				}
				updated, err := repo.GetEvent(ctx, "evt-crud")
				if err != nil {
					t.Fatalf("GetEvent after update: %v", err)
				}
				if updated.Status != "confirmed" || updated.Version != 2 {
					t.Fatalf("unexpected event after update: %+v", updated)
				}

				if err := repo.DeleteEvent(ctx, "evt-crud"); err != nil {
					t.Fatalf("DeleteEvent: %v", err)
				}
				if _, err := repo.GetEvent(ctx, "evt-crud"); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
				if err := repo.DeleteEvent(ctx, "evt-crud"); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound on second delete, got %v", err)
				}
			})

			t.Run("rejects duplicates and stale versions", func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				repo := b.open(t)

				event := newPersistenceEvent(testfixtures.WithEventID("evt-guard"))
				if err := repo.CreateEvent(ctx, event); err != nil {
					t.Fatalf("CreateEvent: %v", err)
				}
				if err := repo.CreateEvent(ctx, event); !errors.Is(err, persistence.ErrDuplicate) {
					t.Fatalf("expected ErrDuplicate, got %v", err)
				}

				first := event
				first.Title = "first writer"
				if err := repo.UpdateEvent(ctx, first); err != nil {
					t.Fatalf("UpdateEvent: %v", err)
				}
				second := event
				second.Title = "second writer"
				if err := repo.UpdateEvent(ctx, second); !errors.Is(err, persistence.ErrVersionConflict) {
					t.Fatalf("expected ErrVersionConflict, got %v", err)
				}

				missing := newPersistenceEvent(testfixtures.WithEventID("evt-missing"))
				if err := repo.UpdateEvent(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
			})

			t.Run("rejects an empty window", func(t *testing.T) {
				t.Parallel()

				repo := b.open(t)
				start := testfixtures.ReferenceTime()
				event := newPersistenceEvent(testfixtures.WithEventWindow(start, start))
				if err := repo.CreateEvent(context.Background(), event); !errors.Is(err, persistence.ErrConstraintViolation) {
					t.Fatalf("expected ErrConstraintViolation, got %v", err)
				}
			})

			t.Run("filters and orders events", func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				repo := b.open(t)
				base := testfixtures.ReferenceTime()

				events := []persistence.Event{
					newPersistenceEvent(testfixtures.WithEventID("b"), testfixtures.WithEventWindow(base, base.Add(time.Hour)), testfixtures.WithEventResources("room-1")),
					newPersistenceEvent(testfixtures.WithEventID("a"), testfixtures.WithEventWindow(base, base.Add(2*time.Hour)), testfixtures.WithEventModule("hr")),
					newPersistenceEvent(testfixtures.WithEventID("c"), testfixtures.WithEventWindow(base.Add(3*time.Hour), base.Add(4*time.Hour)), testfixtures.WithEventAttendees("carol"), testfixtures.WithEventResources("room-1")),
				}
				for _, event := range events {
					if err := repo.CreateEvent(ctx, event); err != nil {
						t.Fatalf("CreateEvent(%s): %v", event.ID, err)
					}
				}

				from := base.Add(time.Hour)
				to := base.Add(3 * time.Hour)
				tests := []struct {
					name   string
					filter persistence.EventFilter
					want   []string
				}{
					{name: "no filter", want: []string{"a", "b", "c"}},
					{name: "module", filter: persistence.EventFilter{Module: "hr"}, want: []string{"a"}},
					{name: "resource", filter: persistence.EventFilter{ResourceID: "room-1"}, want: []string{"b", "c"}},
					{name: "attendee", filter: persistence.EventFilter{AttendeeID: "carol"}, want: []string{"c"}},
					{name: "half-open window", filter: persistence.EventFilter{From: &from, To: &to}, want: []string{"a"}},
				}
				for _, tt := range tests {
					got, err := repo.ListEvents(ctx, tt.filter)
					if err != nil {
						t.Fatalf("%s: ListEvents: %v", tt.name, err)
					}
					if ids := eventIDs(got); !slices.Equal(ids, tt.want) {
						t.Errorf("%s: expected %v, got %v", tt.name, tt.want, ids)
					}
				}
			})

			t.Run("returns copies", func(t *testing.T) {
				t.Parallel()

				ctx := context.Background()
				repo := b.open(t)
				event := newPersistenceEvent(testfixtures.WithEventID("evt-copy"), testfixtures.WithEventResources("room-1"))
				if err := repo.CreateEvent(ctx, event); err != nil {
					t.Fatalf("CreateEvent: %v", err)
				}

				got, err := repo.GetEvent(ctx, "evt-copy")
				if err != nil {
					t.Fatalf("GetEvent: %v", err)
				}
				got.Resources[0] = "mutated"

				again, err := repo.GetEvent(ctx, "evt-copy")
				if err != nil {
					t.Fatalf("GetEvent: %v", err)
				}
				if again.Resources[0] != "room-1" {
					t.Fatalf("stored event was mutated through a returned slice: %v", again.Resources)
				}
			})
		})
	}
}

func TestEventFilterMatches(t *testing.T) {
	t.Parallel()

	base := testfixtures.ReferenceTime()
	event := newPersistenceEvent(
		testfixtures.WithEventWindow(base, base.Add(time.Hour)),
		testfixtures.WithEventResources("room-1"),
		testfixtures.WithEventAttendees("alice"),
	)
	end := base.Add(time.Hour)

	tests := []struct {
		name   string
		filter persistence.EventFilter
		want   bool
	}{
		{name: "empty", filter: persistence.EventFilter{}, want: true},
		{name: "module mismatch", filter: persistence.EventFilter{Module: "hr"}, want: false},
		{name: "status match", filter: persistence.EventFilter{Status: "scheduled"}, want: true},
		{name: "touching from", filter: persistence.EventFilter{From: &end}, want: false},
		{name: "touching to", filter: persistence.EventFilter{To: &base}, want: false},
		{name: "resource", filter: persistence.EventFilter{ResourceID: "room-1"}, want: true},
		{name: "attendee mismatch", filter: persistence.EventFilter{AttendeeID: "bob"}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.filter.Matches(event); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
