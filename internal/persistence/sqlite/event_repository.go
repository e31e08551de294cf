package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/scheduling-core/internal/persistence"
)

// linkBatchSize bounds the IN list used when loading attendee and resource sets.
const linkBatchSize = 500

// zeroNanos stores the zero time, which UnixNano cannot express. Every other
// stored instant lies in [minInstant, maxInstant].
const zeroNanos = math.MinInt64

var (
	minInstant = time.Unix(0, math.MinInt64+1).UTC()
	maxInstant = time.Unix(0, math.MaxInt64).UTC()
)

const eventColumns = `e.id, e.title, e.start_ns, e.end_ns, e.type, e.module, e.location,
	e.priority, e.status, e.reminder_minutes, e.version, e.created_ns, e.updated_ns`

// EventRepository implements persistence.EventRepository on SQLite. Attendees
// and resources live in join tables so resource and attendee filters use
// indexes instead of scanning.
type EventRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateEvent inserts the event with its attendee and resource sets.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := checkInstants(event); err != nil {
		return err
	}
	if event.Version == 0 {
		event.Version = 1
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO events (id, title, start_ns, end_ns, type, module, location,
					priority, status, reminder_minutes, version, created_ns, updated_ns)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				event.ID,
				event.Title,
				toNanos(event.Start),
				toNanos(event.End),
				event.Type,
				event.Module,
				event.Location,
				event.Priority,
				event.Status,
				nullableInt(event.ReminderMinutes),
				event.Version,
				toNanos(event.CreatedAt),
				toNanos(event.UpdatedAt),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
			return r.insertLinks(ctx, tx, event)
		})
	})
}

// UpdateEvent replaces the stored event when event.Version is current and
// bumps the version.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := checkInstants(event); err != nil {
		return err
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				UPDATE events SET title = ?, start_ns = ?, end_ns = ?, type = ?, module = ?,
					location = ?, priority = ?, status = ?, reminder_minutes = ?,
					version = version + 1, updated_ns = ?
				WHERE id = ? AND version = ?`,
				event.Title,
				toNanos(event.Start),
				toNanos(event.End),
				event.Type,
				event.Module,
				event.Location,
				event.Priority,
				event.Status,
				nullableInt(event.ReminderMinutes),
				toNanos(event.UpdatedAt),
				event.ID,
				event.Version,
			)
			if err != nil {
				return r.mapper.MapError(err)
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return r.mapper.MapError(err)
			}
			if affected == 0 {
				var version int
				err := tx.QueryRowContext(ctx, `SELECT version FROM events WHERE id = ?`, event.ID).Scan(&version)
				if errors.Is(err, sql.ErrNoRows) {
					return persistence.ErrNotFound
				}
				if err != nil {
					return r.mapper.MapError(err)
				}
				return fmt.Errorf("sqlite: event %s at version %d, got %d: %w", event.ID, version, event.Version, persistence.ErrVersionConflict)
			}

			if err := r.deleteLinks(ctx, tx, event.ID); err != nil {
				return err
			}
			return r.insertLinks(ctx, tx, event)
		})
	})
}

// GetEvent retrieves an event by ID.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	var event persistence.Event
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
		var err error
		event, err = scanEvent(row)
		if err != nil {
			return r.mapper.MapError(err)
		}

		events := []persistence.Event{event}
		if err := r.loadLinks(ctx, tx, events); err != nil {
			return err
		}
		event = events[0]
		return nil
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

// ListEvents returns events matching the filter ordered by start, then id.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	query, args := buildListQuery(filter)

	events := make([]persistence.Event, 0)
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return r.mapper.MapError(err)
			}
			events = append(events, event)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return r.mapper.MapError(err)
		}
		rows.Close()

		return r.loadLinks(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEvent removes an event and its links.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := r.deleteLinks(ctx, tx, id); err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return r.mapper.MapError(err)
			}
			if affected == 0 {
				return persistence.ErrNotFound
			}
			return nil
		})
	})
}

func buildListQuery(filter persistence.EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Module != "" {
		clauses = append(clauses, "e.module = ?")
		args = append(args, filter.Module)
	}
	if filter.Type != "" {
		clauses = append(clauses, "e.type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		clauses = append(clauses, "e.status = ?")
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		clauses = append(clauses, "e.end_ns > ?")
		args = append(args, clampNanos(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "e.start_ns < ?")
		args = append(args, clampNanos(*filter.To))
	}
	if filter.ResourceID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM event_resources r WHERE r.event_id = e.id AND r.resource_id = ?)")
		args = append(args, filter.ResourceID)
	}
	if filter.AttendeeID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM event_attendees a WHERE a.event_id = e.id AND a.attendee_id = ?)")
		args = append(args, filter.AttendeeID)
	}

	query := `SELECT ` + eventColumns + ` FROM events e`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.start_ns, e.id"
	return query, args
}

func (r *EventRepository) insertLinks(ctx context.Context, tx *sql.Tx, event persistence.Event) error {
	for _, attendee := range event.Attendees {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO event_attendees (event_id, attendee_id) VALUES (?, ?)`, event.ID, attendee); err != nil {
			return r.mapper.MapError(err)
		}
	}
	for _, resource := range event.Resources {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO event_resources (event_id, resource_id) VALUES (?, ?)`, event.ID, resource); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *EventRepository) deleteLinks(ctx context.Context, tx *sql.Tx, eventID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = ?`, eventID); err != nil {
		return r.mapper.MapError(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_resources WHERE event_id = ?`, eventID); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// loadLinks fills Attendees and Resources for events in batches.
func (r *EventRepository) loadLinks(ctx context.Context, tx *sql.Tx, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}
	index := make(map[string]int, len(events))
	for i, event := range events {
		index[event.ID] = i
	}

	for start := 0; start < len(events); start += linkBatchSize {
		end := start + linkBatchSize
		if end > len(events) {
			end = len(events)
		}
		ids := make([]any, 0, end-start)
		for _, event := range events[start:end] {
			ids = append(ids, event.ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

		attendees, err := r.queryLinks(ctx, tx, `SELECT event_id, attendee_id FROM event_attendees WHERE event_id IN (`+placeholders+`) ORDER BY attendee_id`, ids)
		if err != nil {
			return err
		}
		for id, values := range attendees {
			events[index[id]].Attendees = values
		}

		resources, err := r.queryLinks(ctx, tx, `SELECT event_id, resource_id FROM event_resources WHERE event_id IN (`+placeholders+`) ORDER BY resource_id`, ids)
		if err != nil {
			return err
		}
		for id, values := range resources {
			events[index[id]].Resources = values
		}
	}
	return nil
}

func (r *EventRepository) queryLinks(ctx context.Context, tx *sql.Tx, query string, args []any) (map[string][]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var eventID, value string
		if err := rows.Scan(&eventID, &value); err != nil {
			return nil, r.mapper.MapError(err)
		}
		links[eventID] = append(links[eventID], value)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return links, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                               persistence.Event
		startNs, endNs, createdNs, updateNs int64
		reminder                            sql.NullInt64
	)
	err := row.Scan(
		&event.ID,
		&event.Title,
		&startNs,
		&endNs,
		&event.Type,
		&event.Module,
		&event.Location,
		&event.Priority,
		&event.Status,
		&reminder,
		&event.Version,
		&createdNs,
		&updateNs,
	)
	if err != nil {
		return persistence.Event{}, err
	}

	event.Start = fromNanos(startNs)
	event.End = fromNanos(endNs)
	event.CreatedAt = fromNanos(createdNs)
	event.UpdatedAt = fromNanos(updateNs)
	if reminder.Valid {
		minutes := int(reminder.Int64)
		event.ReminderMinutes = &minutes
	}
	return event, nil
}

func storable(t time.Time) bool {
	return t.IsZero() || (!t.Before(minInstant) && !t.After(maxInstant))
}

func checkInstants(event persistence.Event) error {
	for _, t := range []time.Time{event.Start, event.End, event.CreatedAt, event.UpdatedAt} {
		if !storable(t) {
			return fmt.Errorf("sqlite: event %s: instant %s outside storable range: %w",
				event.ID, t.UTC().Format(time.RFC3339), persistence.ErrConstraintViolation)
		}
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return zeroNanos
	}
	return t.UTC().UnixNano()
}

// clampNanos converts a filter bound, saturating instants beyond the
// storable range so the predicate still selects the right rows.
func clampNanos(t time.Time) int64 {
	switch {
	case t.Before(minInstant):
		return math.MinInt64 + 1
	case t.After(maxInstant):
		return math.MaxInt64
	}
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == zeroNanos {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

var _ persistence.EventRepository = (*EventRepository)(nil)
