package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/scheduling-core/internal/persistence"
	"github.com/example/scheduling-core/internal/persistence/sqlite/migration"
)

var baseTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func setupEventRepositoryTest(t *testing.T) (*EventRepository, *ConnectionPool) {
	t.Helper()

	pool, err := NewConnectionPool(migration.DefaultSQLiteConfig(filepath.Join(t.TempDir(), "events.db")))
	if err != nil {
		t.Fatalf("NewConnectionPool failed: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	applied, err := pool.Migrate(context.Background(), nil, logger)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 migrations applied, got %d", applied)
	}
	return NewEventRepository(pool), pool
}

func sampleEvent(id string, start time.Time, hours int) persistence.Event {
	minutes := 15
	return persistence.Event{
		ID:              id,
		Title:           "Review " + id,
		Start:           start,
		End:             start.Add(time.Duration(hours) * time.Hour),
		Type:            "meeting",
		Module:          "sales",
		Location:        "HQ",
		Attendees:       []string{"alice", "bob"},
		Resources:       []string{"room-1"},
		Priority:        "medium",
		Status:          "scheduled",
		ReminderMinutes: &minutes,
		Version:         1,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
}

func TestEventRepository_CreateAndGet(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	event := sampleEvent("evt-1", baseTime, 2)
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Title != event.Title || !got.Start.Equal(event.Start) || !got.End.Equal(event.End) {
		t.Errorf("unexpected event: %+v", got)
	}
	if len(got.Attendees) != 2 || got.Attendees[0] != "alice" || got.Attendees[1] != "bob" {
		t.Errorf("unexpected attendees: %v", got.Attendees)
	}
	if len(got.Resources) != 1 || got.Resources[0] != "room-1" {
		t.Errorf("unexpected resources: %v", got.Resources)
	}
	if got.ReminderMinutes == nil || *got.ReminderMinutes != 15 {
		t.Errorf("unexpected reminder: %v", got.ReminderMinutes)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
	if got.Start.Location() != time.UTC {
		t.Errorf("expected UTC start, got %v", got.Start.Location())
	}
}

func TestEventRepository_CreateEvent_Duplicate(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	if err := repo.CreateEvent(ctx, sampleEvent("evt-1", baseTime, 1)); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	err := repo.CreateEvent(ctx, sampleEvent("evt-1", baseTime, 1))
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestEventRepository_CreateEvent_InvalidWindow(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)

	event := sampleEvent("evt-1", baseTime, 1)
	event.End = event.Start
	err := repo.CreateEvent(context.Background(), event)
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	if _, err := repo.GetEvent(context.Background(), "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}

func TestEventRepository_CreateEvent_UnstorableInstant(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		start time.Time
	}{
		{"after 2262", time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"before 1678", time.Date(1600, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := sampleEvent("evt-far", tt.start, 1)
			err := repo.CreateEvent(ctx, event)
			if !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Fatalf("expected ErrConstraintViolation, got %v", err)
			}
			if _, err := repo.GetEvent(ctx, "evt-far"); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected nothing stored, got %v", err)
			}
		})
	}
}

func TestEventRepository_UpdateEvent_UnstorableInstant(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	event := sampleEvent("evt-1", baseTime, 1)
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	event.End = time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.UpdateEvent(ctx, event); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if !got.End.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("expected end unchanged, got %v", got.End)
	}
}

func TestEventRepository_EpochRoundTrips(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	epoch := time.Unix(0, 0).UTC()
	event := sampleEvent("evt-epoch", epoch, 1)
	event.CreatedAt = epoch
	event.UpdatedAt = epoch
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-epoch")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Start.IsZero() || !got.Start.Equal(epoch) {
		t.Errorf("expected start %v, got %v", epoch, got.Start)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(epoch) {
		t.Errorf("expected created %v, got %v", epoch, got.CreatedAt)
	}

	from := time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)
	listed, err := repo.ListEvents(ctx, persistence.EventFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "evt-epoch" {
		t.Errorf("expected evt-epoch within a far range, got %+v", listed)
	}
}

func TestEventRepository_UpdateEvent_VersionGuard(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	event := sampleEvent("evt-1", baseTime, 1)
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	event.Title = "Renamed"
	event.Resources = []string{"room-2", "van-1"}
	event.ReminderMinutes = nil
	if err := repo.UpdateEvent(ctx, event); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Version != 2 || got.Title != "Renamed" || got.ReminderMinutes != nil {
		t.Errorf("unexpected event after update: %+v", got)
	}
	if len(got.Resources) != 2 || got.Resources[0] != "room-2" || got.Resources[1] != "van-1" {
		t.Errorf("unexpected resources: %v", got.Resources)
	}

	// event still carries version 1.
	err = repo.UpdateEvent(ctx, event)
	if !errors.Is(err, persistence.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	missing := sampleEvent("evt-missing", baseTime, 1)
	if err := repo.UpdateEvent(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventRepository_ListEvents_Filters(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	first := sampleEvent("evt-b", baseTime, 1)
	second := sampleEvent("evt-a", baseTime, 2)
	second.Module = "hr"
	second.Resources = []string{"van-1"}
	third := sampleEvent("evt-c", baseTime.Add(3*time.Hour), 1)
	third.Attendees = []string{"carol"}
	third.Status = "confirmed"

	for _, event := range []persistence.Event{first, second, third} {
		if err := repo.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent(%s) failed: %v", event.ID, err)
		}
	}

	from := baseTime.Add(90 * time.Minute)
	to := baseTime.Add(4 * time.Hour)

	tests := []struct {
		name   string
		filter persistence.EventFilter
		want   []string
	}{
		{name: "all ordered by start then id", filter: persistence.EventFilter{}, want: []string{"evt-a", "evt-b", "evt-c"}},
		{name: "module", filter: persistence.EventFilter{Module: "hr"}, want: []string{"evt-a"}},
		{name: "status", filter: persistence.EventFilter{Status: "confirmed"}, want: []string{"evt-c"}},
		{name: "resource", filter: persistence.EventFilter{ResourceID: "room-1"}, want: []string{"evt-b", "evt-c"}},
		{name: "attendee", filter: persistence.EventFilter{AttendeeID: "carol"}, want: []string{"evt-c"}},
		{name: "window excludes touching", filter: persistence.EventFilter{From: &from, To: &to}, want: []string{"evt-a", "evt-c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			ids := make([]string, 0, len(events))
			for _, event := range events {
				ids = append(ids, event.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestEventRepository_ListEvents_LoadsLinksAcrossBatches(t *testing.T) {
	repo, _ := setupEventRepositoryTest(t)
	ctx := context.Background()

	const count = linkBatchSize + 20
	for i := 0; i < count; i++ {
		event := sampleEvent(fmt.Sprintf("evt-%04d", i), baseTime.Add(time.Duration(i)*time.Hour), 1)
		event.Resources = []string{fmt.Sprintf("room-%d", i)}
		if err := repo.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	events, err := repo.ListEvents(ctx, persistence.EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != count {
		t.Fatalf("expected %d events, got %d", count, len(events))
	}
	last := events[count-1]
	if len(last.Resources) != 1 || last.Resources[0] != fmt.Sprintf("room-%d", count-1) {
		t.Errorf("links not loaded for last batch: %v", last.Resources)
	}
}

func TestEventRepository_DeleteEvent(t *testing.T) {
	repo, pool := setupEventRepositoryTest(t)
	ctx := context.Background()

	if err := repo.CreateEvent(ctx, sampleEvent("evt-1", baseTime, 1)); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if err := repo.DeleteEvent(ctx, "evt-1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := repo.GetEvent(ctx, "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	var links int
	if err := pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM event_resources`).Scan(&links); err != nil {
		t.Fatalf("count links: %v", err)
	}
	if links != 0 {
		t.Errorf("expected links removed, found %d", links)
	}

	if err := repo.DeleteEvent(ctx, "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestErrorMapper_MapError(t *testing.T) {
	mapper := NewErrorMapper()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique", err: errors.New("constraint failed: UNIQUE constraint failed: events.id"), want: persistence.ErrDuplicate},
		{name: "check", err: errors.New("CHECK constraint failed: start_ns < end_ns"), want: persistence.ErrConstraintViolation},
		{name: "foreign key", err: errors.New("FOREIGN KEY constraint failed"), want: persistence.ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapper.MapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if mapper.MapError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestRetryHelper_RetriesBusyErrors(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = helper.WithRetry(context.Background(), func() error {
		calls++
		return persistence.ErrNotFound
	})
	if !errors.Is(err, persistence.ErrNotFound) || calls != 1 {
		t.Fatalf("expected single attempt for non-busy error, got err=%v calls=%d", err, calls)
	}
}
