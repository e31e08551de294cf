package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHubDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	var order []string
	hub.OnEventChanged(func(_ context.Context, change EventChanged) error {
		order = append(order, "first:"+change.EventID)
		return nil
	})
	hub.OnEventChanged(func(_ context.Context, change EventChanged) error {
		order = append(order, "second:"+string(change.Kind))
		return nil
	})

	hub.PublishEventChanged(context.Background(), EventChanged{Kind: ChangeCreated, EventID: "evt-1"})

	if len(order) != 2 || order[0] != "first:evt-1" || order[1] != "second:created" {
		t.Fatalf("unexpected delivery %v", order)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	calls := 0
	unsubscribe := hub.OnReminderDue(func(context.Context, ReminderDue) error {
		calls++
		return nil
	})

	if err := hub.PublishReminderDue(context.Background(), ReminderDue{EventID: "evt-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unsubscribe()
	unsubscribe()
	if err := hub.PublishReminderDue(context.Background(), ReminderDue{EventID: "evt-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestHubIsolatesFailingSubscribers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	hub := NewHub(slog.New(slog.NewTextHandler(&buf, nil)))

	delivered := false
	hub.OnEventChanged(func(context.Context, EventChanged) error {
		panic("boom")
	})
	hub.OnEventChanged(func(context.Context, EventChanged) error {
		return errors.New("smtp unavailable")
	})
	hub.OnEventChanged(func(context.Context, EventChanged) error {
		delivered = true
		return nil
	})

	hub.PublishEventChanged(context.Background(), EventChanged{Kind: ChangeDeleted, EventID: "evt-9", OccurredAt: time.Now()})

	if !delivered {
		t.Fatalf("healthy subscriber should still receive the signal")
	}
	logs := buf.String()
	if !strings.Contains(logs, "subscriber panic: boom") || !strings.Contains(logs, "smtp unavailable") {
		t.Fatalf("expected both failures to be logged, got %q", logs)
	}
}

func TestPublishReminderDueJoinsErrors(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	hub.OnReminderDue(func(context.Context, ReminderDue) error { return errA })
	hub.OnReminderDue(func(context.Context, ReminderDue) error { return nil })
	hub.OnReminderDue(func(context.Context, ReminderDue) error { return errB })

	err := hub.PublishReminderDue(context.Background(), ReminderDue{EventID: "evt-1"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.PublishEventChanged(context.Background(), EventChanged{})
	if err := hub.PublishReminderDue(context.Background(), ReminderDue{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
