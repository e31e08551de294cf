package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/scheduling-core/internal/notify"
	"github.com/example/scheduling-core/internal/persistence"
	"github.com/example/scheduling-core/internal/reminder"
	"github.com/example/scheduling-core/internal/scheduler"
)

// EventRepository captures the persistence interactions needed by the service.
// UpdateEvent expects event.Version to equal the stored version and returns the
// stored event with its new version.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// ReminderScheduler arms and disarms per-event reminders.
type ReminderScheduler interface {
	Schedule(event reminder.Event) (reminder.Handle, bool)
	CancelEvent(eventID string) bool
}

// ChangePublisher receives a signal after every committed write.
type ChangePublisher interface {
	PublishEventChanged(ctx context.Context, change notify.EventChanged)
}

// EventService is the shared event store. Writes run conflict detection and
// commit under one writer lock so two overlapping candidates can never both be
// accepted; reads go straight to the repository.
type EventService struct {
	events      EventRepository
	reminders   ReminderScheduler
	publisher   ChangePublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	slotSize    time.Duration
	maxAttempts int
	reportTTL   time.Duration

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	reports   *reportCache
	telemetry *telemetry

	writeMu sync.Mutex
}

// EventServiceOption configures an EventService.
type EventServiceOption func(*EventService)

// WithReminders wires the reminder scheduler kept in step with every write.
func WithReminders(reminders ReminderScheduler) EventServiceOption {
	return func(s *EventService) {
		s.reminders = reminders
	}
}

// WithPublisher wires the change signal subscriber point.
func WithPublisher(publisher ChangePublisher) EventServiceOption {
	return func(s *EventService) {
		s.publisher = publisher
	}
}

// WithIDGenerator overrides the UUID generator used for new events.
func WithIDGenerator(generator func() string) EventServiceOption {
	return func(s *EventService) {
		if generator != nil {
			s.idGenerator = generator
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EventServiceOption {
	return func(s *EventService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the base logger used when the context carries none.
func WithLogger(logger *slog.Logger) EventServiceOption {
	return func(s *EventService) {
		s.logger = logger
	}
}

// WithSlotSize sets the default availability slot for utilization reports.
func WithSlotSize(size time.Duration) EventServiceOption {
	return func(s *EventService) {
		if size > 0 {
			s.slotSize = size
		}
	}
}

// WithUpdateAttempts bounds how often an update is reapplied after losing a
// version race.
func WithUpdateAttempts(attempts int) EventServiceOption {
	return func(s *EventService) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithReportCacheTTL sets how long utilization reports are reused.
func WithReportCacheTTL(ttl time.Duration) EventServiceOption {
	return func(s *EventService) {
		s.reportTTL = ttl
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) EventServiceOption {
	return func(s *EventService) {
		s.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) EventServiceOption {
	return func(s *EventService) {
		s.meterProvider = mp
	}
}

// NewEventService wires dependencies for event operations.
func NewEventService(events EventRepository, opts ...EventServiceOption) *EventService {
	s := &EventService{
		events:      events,
		idGenerator: uuid.NewString,
		now:         time.Now,
		slotSize:    scheduler.DefaultSlotSize,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = defaultLogger(s.logger)
	s.reports = newReportCache(s.reportTTL, 0, s.now)
	s.telemetry = newTelemetry(s.tracerProvider, s.meterProvider)
	return s
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates the input, checks it against every event that still
// occupies its window and commits it. Conflicts are rejected with a
// *ConflictError unless params.OverrideConflicts is set, in which case the
// event is stored and the report is returned alongside it.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, report ConflictReport, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	ctx, span := s.telemetry.start(ctx, "CreateEvent",
		attribute.String("event.module", string(params.Input.Module)),
		attribute.Bool("override_conflicts", params.OverrideConflicts),
	)
	logger := s.loggerWith(ctx, "CreateEvent",
		"module", params.Input.Module,
		"override_conflicts", params.OverrideConflicts,
	)
	defer func() {
		s.telemetry.finish(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID, "has_conflict", report.HasConflict).InfoContext(ctx, "event created")
	}()

	candidate, vErr := s.newEvent(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	s.writeMu.Lock()
	event, report, err = s.createLocked(ctx, candidate, params.OverrideConflicts)
	s.writeMu.Unlock()
	if err != nil {
		return
	}

	span.SetAttributes(attribute.String("event.id", event.ID))
	s.telemetry.recordWrite(ctx, "create")
	s.publish(ctx, notify.ChangeCreated, event)
	return
}

func (s *EventService) createLocked(ctx context.Context, candidate Event, override bool) (Event, ConflictReport, error) {
	if candidate.ID != "" {
		_, err := s.events.GetEvent(ctx, candidate.ID)
		switch err = mapEventRepoError(err); {
		case err == nil:
			return Event{}, ConflictReport{}, newValidationError("id", "an event with this id already exists")
		case !errors.Is(err, ErrNotFound):
			return Event{}, ConflictReport{}, err
		}
	} else {
		candidate.ID = s.idGenerator()
	}

	report, err := s.detectLocked(ctx, candidate)
	if err != nil {
		return Event{}, ConflictReport{}, err
	}
	if report.HasConflict && !override {
		s.telemetry.recordConflict(ctx, report.ConflictType)
		return Event{}, report, &ConflictError{Report: report}
	}

	persisted, err := s.events.CreateEvent(ctx, candidate)
	if err != nil {
		return Event{}, ConflictReport{}, mapEventRepoError(err)
	}

	s.reports.Invalidate()
	s.syncReminder(persisted)
	return persisted, report, nil
}

// GetEvent returns a single event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}
	if strings.TrimSpace(eventID) == "" {
		err = ErrNotFound
		return
	}

	event, err = s.events.GetEvent(ctx, eventID)
	err = mapEventRepoError(err)
	return
}

// ListEvents returns events matching filter ordered by start, then id.
func (s *EventService) ListEvents(ctx context.Context, filter EventFilter) (events []Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	ctx, span := s.telemetry.start(ctx, "ListEvents",
		attribute.String("filter.module", string(filter.Module)),
		attribute.String("filter.resource", filter.ResourceID),
	)
	defer func() {
		span.SetAttributes(attribute.Int("events.returned", len(events)))
		s.telemetry.finish(span, err)
	}()

	if vErr := validateFilter(filter); vErr.HasErrors() {
		err = vErr
		return
	}

	events, err = s.events.ListEvents(ctx, filter)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	sortEvents(events)
	return
}

// UpdateEvent applies the patch to the stored event. Status changes follow the
// lifecycle, events in a terminal status only accept no-op patches, and a
// patch that moves the event in time, space or membership is re-checked for
// conflicts. A lost version race is retried by re-reading and reapplying the
// patch; ErrConcurrency is returned once the attempts are exhausted.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event Event, report ConflictReport, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	ctx, span := s.telemetry.start(ctx, "UpdateEvent",
		attribute.String("event.id", params.EventID),
		attribute.Bool("override_conflicts", params.OverrideConflicts),
	)
	logger := s.loggerWith(ctx, "UpdateEvent",
		"event_id", params.EventID,
		"override_conflicts", params.OverrideConflicts,
	)
	defer func() {
		s.telemetry.finish(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", event.Status, "version", event.Version).InfoContext(ctx, "event updated")
	}()

	var changed bool
	for attempt := 1; ; attempt++ {
		s.writeMu.Lock()
		event, report, changed, err = s.updateLocked(ctx, params)
		s.writeMu.Unlock()

		if errors.Is(err, ErrConcurrency) && attempt < s.maxAttempts {
			logger.WarnContext(ctx, "retrying update after concurrent modification", "attempt", attempt)
			continue
		}
		break
	}
	if err != nil || !changed {
		return
	}

	s.telemetry.recordWrite(ctx, "update")
	s.publish(ctx, notify.ChangeUpdated, event)
	return
}

func (s *EventService) updateLocked(ctx context.Context, params UpdateEventParams) (Event, ConflictReport, bool, error) {
	existing, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return Event{}, ConflictReport{}, false, mapEventRepoError(err)
	}

	updated, err := applyPatch(existing, params.Patch)
	if err != nil {
		return Event{}, ConflictReport{}, false, err
	}
	if sameContent(existing, updated) {
		return existing, ConflictReport{}, false, nil
	}
	updated.UpdatedAt = s.now()

	var report ConflictReport
	if schedulingChanged(existing, updated) {
		report, err = s.detectLocked(ctx, updated)
		if err != nil {
			return Event{}, ConflictReport{}, false, err
		}
		if report.HasConflict && !params.OverrideConflicts {
			s.telemetry.recordConflict(ctx, report.ConflictType)
			return Event{}, report, false, &ConflictError{Report: report}
		}
	}

	persisted, err := s.events.UpdateEvent(ctx, updated)
	if err != nil {
		return Event{}, ConflictReport{}, false, mapEventRepoError(err)
	}

	s.reports.Invalidate()
	s.syncReminder(persisted)
	return persisted, report, true, nil
}

// DeleteEvent removes the event and cancels its pending reminder.
func (s *EventService) DeleteEvent(ctx context.Context, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	ctx, span := s.telemetry.start(ctx, "DeleteEvent", attribute.String("event.id", eventID))
	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", eventID)
	defer func() {
		s.telemetry.finish(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	s.writeMu.Lock()
	removed, err := s.deleteLocked(ctx, eventID)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.telemetry.recordWrite(ctx, "delete")
	s.publish(ctx, notify.ChangeDeleted, removed)
	return nil
}

func (s *EventService) deleteLocked(ctx context.Context, eventID string) (Event, error) {
	existing, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapEventRepoError(err)
	}
	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		return Event{}, mapEventRepoError(err)
	}
	if s.reminders != nil {
		s.reminders.CancelEvent(eventID)
	}
	s.reports.Invalidate()
	return existing, nil
}

// DetectConflicts previews the report a write of input would produce without
// storing anything. A candidate missing its start or end has no conflicts.
func (s *EventService) DetectConflicts(ctx context.Context, input EventInput) (report ConflictReport, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	ctx, span := s.telemetry.start(ctx, "DetectConflicts")
	defer func() {
		span.SetAttributes(attribute.Bool("conflict.detected", report.HasConflict))
		s.telemetry.finish(span, err)
	}()

	if input.Start.IsZero() || input.End.IsZero() {
		return ConflictReport{}, nil
	}
	if !input.Start.Before(input.End) {
		err = newValidationError("time", "start must be before end")
		return
	}

	candidate := Event{
		ID:        strings.TrimSpace(input.ID),
		Start:     input.Start,
		End:       input.End,
		Location:  strings.TrimSpace(input.Location),
		Attendees: normalizeSet(input.Attendees),
		Resources: normalizeSet(input.Resources),
		Status:    StatusScheduled,
	}
	return s.detectLocked(ctx, candidate)
}

// detectLocked lists the events sharing the candidate's window and classifies
// them. Callers that commit afterwards must hold writeMu.
func (s *EventService) detectLocked(ctx context.Context, candidate Event) (ConflictReport, error) {
	if !candidate.Status.OccupiesTime() {
		return ConflictReport{}, nil
	}
	from, to := candidate.Start, candidate.End
	existing, err := s.events.ListEvents(ctx, EventFilter{From: &from, To: &to})
	if err != nil {
		return ConflictReport{}, mapEventRepoError(err)
	}
	return buildConflictReport(existing, candidate), nil
}

// ResourceUtilization reports how much of [From, To) the resource is booked,
// with an availability calendar in SlotSize buckets.
func (s *EventService) ResourceUtilization(ctx context.Context, params UtilizationParams) (report UtilizationReport, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	ctx, span := s.telemetry.start(ctx, "ResourceUtilization", attribute.String("resource.id", params.ResourceID))
	defer func() {
		span.SetAttributes(attribute.Float64("utilization.rate", report.UtilizationRate))
		s.telemetry.finish(span, err)
	}()

	vErr := &ValidationError{}
	resourceID := strings.TrimSpace(params.ResourceID)
	if resourceID == "" {
		vErr.add("resource_id", "resource is required")
	}
	if params.From.IsZero() {
		vErr.add("from", "from is required")
	}
	if params.To.IsZero() {
		vErr.add("to", "to is required")
	}
	if !params.From.IsZero() && !params.To.IsZero() && !params.From.Before(params.To) {
		vErr.add("range", "from must be before to")
	}
	if params.SlotSize < 0 {
		vErr.add("slot", "slot size must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	slot := params.SlotSize
	if slot == 0 {
		slot = s.slotSize
	}

	key := buildReportCacheKey(resourceID, params.From, params.To, slot)
	if cached, ok := s.reports.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	generation := s.reports.Generation()
	from, to := params.From, params.To
	events, err := s.events.ListEvents(ctx, EventFilter{ResourceID: resourceID, From: &from, To: &to})
	if err != nil {
		err = mapEventRepoError(err)
		return
	}

	bookings := make([]scheduler.Event, 0, len(events))
	for _, event := range events {
		if event.Status == StatusCancelled {
			continue
		}
		bookings = append(bookings, toSchedulerEvent(event))
	}

	raw, uErr := scheduler.Utilization(bookings, resourceID, scheduler.Range{Start: from, End: to}, slot)
	switch {
	case errors.Is(uErr, scheduler.ErrInvalidRange):
		err = newValidationError("range", "from must be before to")
		return
	case errors.Is(uErr, scheduler.ErrTooManySlots):
		err = newValidationError("slot", TooManySlotsMessage)
		return
	case uErr != nil:
		err = uErr
		return
	}

	report = toUtilizationReport(raw)
	s.reports.Store(key, report, generation)
	return report, nil
}

// SweepCompleted moves confirmed events whose end has passed to completed. It
// goes through UpdateEvent so reminders and change signals stay consistent.
func (s *EventService) SweepCompleted(ctx context.Context) (completed int, err error) {
	if s == nil {
		return 0, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return 0, fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "SweepCompleted")
	now := s.now()
	candidates, err := s.events.ListEvents(ctx, EventFilter{Status: StatusConfirmed, To: &now})
	if err != nil {
		return 0, mapEventRepoError(err)
	}

	status := StatusCompleted
	var errs []error
	for _, event := range candidates {
		if event.End.After(now) {
			continue
		}
		_, _, uErr := s.UpdateEvent(ctx, UpdateEventParams{
			EventID: event.ID,
			Patch:   EventPatch{Status: &status},
		})
		var tErr *InvalidTransitionError
		switch {
		case uErr == nil:
			completed++
		case errors.Is(uErr, ErrNotFound), errors.As(uErr, &tErr):
			// Changed by another writer since the listing.
		default:
			errs = append(errs, fmt.Errorf("complete %s: %w", event.ID, uErr))
		}
	}

	err = errors.Join(errs...)
	if completed > 0 || err != nil {
		logger.InfoContext(ctx, "sweep finished", "completed", completed, "failures", len(errs))
	}
	return completed, err
}

// RestoreReminders re-arms reminders for events that have not ended yet. It is
// called once at startup because timers do not survive a restart.
func (s *EventService) RestoreReminders(ctx context.Context) (armed int, err error) {
	if s == nil {
		return 0, fmt.Errorf("EventService is nil")
	}
	if s.events == nil || s.reminders == nil {
		return 0, nil
	}

	now := s.now()
	events, err := s.events.ListEvents(ctx, EventFilter{From: &now})
	if err != nil {
		return 0, mapEventRepoError(err)
	}
	for _, event := range events {
		if !event.Status.OccupiesTime() || event.ReminderMinutes == nil {
			continue
		}
		if _, ok := s.reminders.Schedule(toReminderEvent(event)); ok {
			armed++
		}
	}
	s.loggerWith(ctx, "RestoreReminders").InfoContext(ctx, "reminders restored", "armed", armed)
	return armed, nil
}

// ReminderStillDue reports whether a reminder for eventID should still be
// dispatched: the event exists and still occupies its window.
func (s *EventService) ReminderStillDue(ctx context.Context, eventID string) (bool, error) {
	event, err := s.GetEvent(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return event.Status.OccupiesTime(), nil
}

func (s *EventService) syncReminder(event Event) {
	if s.reminders == nil {
		return
	}
	if !event.Status.OccupiesTime() {
		s.reminders.CancelEvent(event.ID)
		return
	}
	s.reminders.Schedule(toReminderEvent(event))
}

func (s *EventService) publish(ctx context.Context, kind notify.ChangeKind, event Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishEventChanged(ctx, notify.EventChanged{
		Kind:       kind,
		EventID:    event.ID,
		Title:      event.Title,
		Module:     string(event.Module),
		Start:      event.Start,
		End:        event.End,
		Status:     string(event.Status),
		Attendees:  cloneStrings(event.Attendees),
		Resources:  cloneStrings(event.Resources),
		OccurredAt: s.now(),
	})
}

func (s *EventService) newEvent(input EventInput) (Event, *ValidationError) {
	now := s.now()
	event := Event{
		ID:              strings.TrimSpace(input.ID),
		Title:           strings.TrimSpace(input.Title),
		Start:           input.Start,
		End:             input.End,
		Type:            input.Type,
		Module:          input.Module,
		Location:        strings.TrimSpace(input.Location),
		Attendees:       normalizeSet(input.Attendees),
		Resources:       normalizeSet(input.Resources),
		Priority:        input.Priority,
		Status:          input.Status,
		ReminderMinutes: cloneInt(input.ReminderMinutes),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if event.Priority == "" {
		event.Priority = PriorityMedium
	}
	if event.Status == "" {
		event.Status = StatusScheduled
	}

	vErr := &ValidationError{}
	validateEventFields(event, vErr)
	if event.Status.Valid() && !event.Status.creatable() {
		vErr.add("status", "new events must be scheduled or confirmed")
	}
	return event, vErr
}

// TooManySlotsMessage rejects utilization queries that would exceed
// scheduler.MaxSlots.
var TooManySlotsMessage = fmt.Sprintf("slot size splits the range into more than %d slots", scheduler.MaxSlots)

// Event instants must fall in [earliestInstant, latestInstant).
var (
	earliestInstant = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	latestInstant   = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
)

func supportedInstant(t time.Time) bool {
	return !t.Before(earliestInstant) && t.Before(latestInstant)
}

func validateEventFields(event Event, vErr *ValidationError) {
	if event.Title == "" {
		vErr.add("title", "title is required")
	}
	if event.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if event.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !event.Start.IsZero() && !supportedInstant(event.Start) {
		vErr.add("start", "must be between 1900 and 2199")
	}
	if !event.End.IsZero() && !supportedInstant(event.End) {
		vErr.add("end", "must be between 1900 and 2199")
	}
	if !event.Start.IsZero() && !event.End.IsZero() && !event.Start.Before(event.End) {
		vErr.add("time", "start must be before end")
	}
	if event.Type == "" {
		vErr.add("type", "type is required")
	} else if !event.Type.Valid() {
		vErr.add("type", "unknown event type")
	}
	if event.Module == "" {
		vErr.add("module", "module is required")
	} else if !event.Module.Valid() {
		vErr.add("module", "unknown module")
	}
	if !event.Priority.Valid() {
		vErr.add("priority", "unknown priority")
	}
	if !event.Status.Valid() {
		vErr.add("status", "unknown status")
	}
	if event.ReminderMinutes != nil && *event.ReminderMinutes < 0 {
		vErr.add("reminder_minutes", "reminder must not be negative")
	}
}

func validateFilter(filter EventFilter) *ValidationError {
	vErr := &ValidationError{}
	if filter.Module != "" && !filter.Module.Valid() {
		vErr.add("module", "unknown module")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		vErr.add("type", "unknown event type")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		vErr.add("status", "unknown status")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		vErr.add("range", "from must be before to")
	}
	return vErr
}

// applyPatch returns existing with the patch applied, or the validation or
// lifecycle error that prevents it.
func applyPatch(existing Event, patch EventPatch) (Event, error) {
	updated := cloneEvent(existing)
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
	}
	if patch.End != nil {
		updated.End = *patch.End
	}
	if patch.Type != nil {
		updated.Type = *patch.Type
	}
	if patch.Module != nil {
		updated.Module = *patch.Module
	}
	if patch.Location != nil {
		updated.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Attendees != nil {
		updated.Attendees = normalizeSet(*patch.Attendees)
	}
	if patch.Resources != nil {
		updated.Resources = normalizeSet(*patch.Resources)
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}
	if patch.Status != nil {
		updated.Status = *patch.Status
	}
	switch {
	case patch.ClearReminder:
		updated.ReminderMinutes = nil
	case patch.ReminderMinutes != nil:
		updated.ReminderMinutes = cloneInt(patch.ReminderMinutes)
	}

	if patch.Status != nil && !patch.Status.Valid() {
		return Event{}, newValidationError("status", "unknown status")
	}
	if existing.Status.Terminal() && !sameContent(existing, updated) {
		return Event{}, &InvalidTransitionError{From: existing.Status, To: updated.Status}
	}
	if !existing.Status.CanTransition(updated.Status) {
		return Event{}, &InvalidTransitionError{From: existing.Status, To: updated.Status}
	}

	vErr := &ValidationError{}
	validateEventFields(updated, vErr)
	if vErr.HasErrors() {
		return Event{}, vErr
	}
	return updated, nil
}

func sameContent(a, b Event) bool {
	return a.Title == b.Title &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End) &&
		a.Type == b.Type &&
		a.Module == b.Module &&
		a.Location == b.Location &&
		slices.Equal(a.Attendees, b.Attendees) &&
		slices.Equal(a.Resources, b.Resources) &&
		a.Priority == b.Priority &&
		a.Status == b.Status &&
		equalInt(a.ReminderMinutes, b.ReminderMinutes)
}

// schedulingChanged reports whether the update can introduce new conflicts.
func schedulingChanged(before, after Event) bool {
	if !after.Status.OccupiesTime() {
		return false
	}
	return !before.Start.Equal(after.Start) ||
		!before.End.Equal(after.End) ||
		before.Location != after.Location ||
		!slices.Equal(before.Attendees, after.Attendees) ||
		!slices.Equal(before.Resources, after.Resources) ||
		!before.Status.OccupiesTime()
}

func buildConflictReport(existing []Event, candidate Event) ConflictReport {
	byID := make(map[string]Event, len(existing))
	blocking := make([]scheduler.Event, 0, len(existing))
	for _, event := range existing {
		if !event.Status.OccupiesTime() {
			continue
		}
		byID[event.ID] = event
		blocking = append(blocking, toSchedulerEvent(event))
	}

	raw := scheduler.DetectConflicts(blocking, toSchedulerEvent(candidate))
	report := ConflictReport{
		HasConflict:  raw.HasConflict,
		ConflictType: string(raw.ConflictType),
		LastSeenType: string(raw.LastSeenType),
		Suggestion:   raw.Suggestion,
	}
	for _, conflict := range raw.Conflicts {
		report.Conflicts = append(report.Conflicts, EventConflict{
			Event:           cloneEvent(byID[conflict.WithEventID]),
			Type:            string(conflict.Type),
			SharedAttendees: conflict.Attendees,
			SharedResources: conflict.Resources,
			Location:        conflict.Location,
		})
	}
	return report
}

func toSchedulerEvent(event Event) scheduler.Event {
	return scheduler.Event{
		ID:        event.ID,
		Start:     event.Start,
		End:       event.End,
		Location:  event.Location,
		Attendees: event.Attendees,
		Resources: event.Resources,
	}
}

func toReminderEvent(event Event) reminder.Event {
	return reminder.Event{
		ID:              event.ID,
		Title:           event.Title,
		Start:           event.Start,
		ReminderMinutes: cloneInt(event.ReminderMinutes),
	}
}

func toUtilizationReport(raw scheduler.UtilizationReport) UtilizationReport {
	report := UtilizationReport{
		ResourceID:      raw.ResourceID,
		ResourceType:    string(raw.ResourceType),
		From:            raw.Range.Start,
		To:              raw.Range.End,
		UsedMinutes:     raw.UsedMinutes,
		TotalMinutes:    raw.TotalMinutes,
		UtilizationRate: raw.UtilizationRate,
		Availability:    make([]AvailabilitySlot, len(raw.Availability)),
		BookedEventIDs:  cloneStrings(raw.BookedEventIDs),
	}
	for i, slot := range raw.Availability {
		report.Availability[i] = AvailabilitySlot{Start: slot.Start, End: slot.End, IsAvailable: slot.IsAvailable}
	}
	return report
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrConcurrency) || errors.Is(err, persistence.ErrVersionConflict) {
		return ErrConcurrency
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return newValidationError("id", "an event with this id already exists")
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("event", "event violates storage constraints")
	}
	return err
}

// normalizeSet trims, de-duplicates and sorts identifiers.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
}

func cloneEvent(event Event) Event {
	out := event
	out.Attendees = cloneStrings(event.Attendees)
	out.Resources = cloneStrings(event.Resources)
	out.ReminderMinutes = cloneInt(event.ReminderMinutes)
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
