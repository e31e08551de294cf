package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/scheduling-core/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, application.ConflictReport, error)
	GetEvent(ctx context.Context, eventID string) (application.Event, error)
	ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, application.ConflictReport, error)
	DeleteEvent(ctx context.Context, eventID string) error
	DetectConflicts(ctx context.Context, input application.EventInput) (application.ConflictReport, error)
	ResourceUtilization(ctx context.Context, params application.UtilizationParams) (application.UtilizationReport, error)
}

// EventHandler serves the event store API.
type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput()
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	event, report, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Input:             input,
		OverrideConflicts: req.OverrideConflicts,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "EventHandler", "Create", "event_id", event.ID).DebugContext(r.Context(), "event stored")
	h.renderEvent(r.Context(), w, event, report, http.StatusCreated)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderEvent(r.Context(), w, event, application.ConflictReport{}, http.StatusOK)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter, err := buildEventFilter(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req eventPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	patch, vErr := req.toPatch()
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	event, report, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		EventID:           eventID,
		Patch:             patch,
		OverrideConflicts: req.OverrideConflicts,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderEvent(r.Context(), w, event, report, http.StatusOK)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	if err := h.service.DeleteEvent(r.Context(), eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Preview runs conflict detection for a candidate without storing it.
func (h *EventHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, vErr := req.toInput()
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	report, err := h.service.DetectConflicts(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toConflictReportDTO(report))
}

func (h *EventHandler) Utilization(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resourceID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(resourceID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	query := r.URL.Query()
	from, fromErr := parseQueryTime(query.Get("from"))
	to, toErr := parseQueryTime(query.Get("to"))
	if fromErr != nil || toErr != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQueryTime)
		return
	}

	var slot time.Duration
	if value := strings.TrimSpace(query.Get("slot")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlotSize)
			return
		}
		slot = parsed
	}

	report, err := h.service.ResourceUtilization(r.Context(), application.UtilizationParams{
		ResourceID: resourceID,
		From:       from,
		To:         to,
		SlotSize:   slot,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUtilizationDTO(report))
}

func (h *EventHandler) renderEvent(ctx context.Context, w http.ResponseWriter, event application.Event, report application.ConflictReport, status int) {
	payload := eventResponse{Event: toEventDTO(event)}
	if report.HasConflict {
		dto := toConflictReportDTO(report)
		payload.Conflict = &dto
	}
	h.responder.writeJSON(ctx, w, status, payload)
}

func buildEventFilter(query url.Values) (application.EventFilter, error) {
	filter := application.EventFilter{
		Module:     application.Module(strings.TrimSpace(query.Get("module"))),
		Type:       application.EventType(strings.TrimSpace(query.Get("type"))),
		Status:     application.Status(strings.TrimSpace(query.Get("status"))),
		ResourceID: strings.TrimSpace(query.Get("resource")),
		AttendeeID: strings.TrimSpace(query.Get("attendee")),
	}
	for key, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		value := strings.TrimSpace(query.Get(key))
		if value == "" {
			continue
		}
		ts, err := parseQueryTime(value)
		if err != nil {
			return application.EventFilter{}, errInvalidQueryTime
		}
		*target = &ts
	}
	return filter, nil
}

type eventRequest struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Start             string   `json:"start"`
	End               string   `json:"end"`
	Type              string   `json:"type"`
	Module            string   `json:"module"`
	Location          string   `json:"location"`
	Attendees         []string `json:"attendees"`
	Resources         []string `json:"resources"`
	Priority          string   `json:"priority"`
	Status            string   `json:"status"`
	ReminderMinutes   *int     `json:"reminder_minutes"`
	OverrideConflicts bool     `json:"override_conflicts"`
}

func (r eventRequest) toInput() (application.EventInput, *application.ValidationError) {
	vErr := &application.ValidationError{}
	return application.EventInput{
		ID:              strings.TrimSpace(r.ID),
		Title:           r.Title,
		Start:           parseField(vErr, "start", r.Start),
		End:             parseField(vErr, "end", r.End),
		Type:            application.EventType(strings.TrimSpace(r.Type)),
		Module:          application.Module(strings.TrimSpace(r.Module)),
		Location:        r.Location,
		Attendees:       append([]string(nil), r.Attendees...),
		Resources:       append([]string(nil), r.Resources...),
		Priority:        application.Priority(strings.TrimSpace(r.Priority)),
		Status:          application.Status(strings.TrimSpace(r.Status)),
		ReminderMinutes: r.ReminderMinutes,
	}, vErr
}

type eventPatchRequest struct {
	Title             *string   `json:"title"`
	Start             *string   `json:"start"`
	End               *string   `json:"end"`
	Type              *string   `json:"type"`
	Module            *string   `json:"module"`
	Location          *string   `json:"location"`
	Attendees         *[]string `json:"attendees"`
	Resources         *[]string `json:"resources"`
	Priority          *string   `json:"priority"`
	Status            *string   `json:"status"`
	ReminderMinutes   *int      `json:"reminder_minutes"`
	ClearReminder     bool      `json:"clear_reminder"`
	OverrideConflicts bool      `json:"override_conflicts"`
}

func (r eventPatchRequest) toPatch() (application.EventPatch, *application.ValidationError) {
	vErr := &application.ValidationError{}
	patch := application.EventPatch{
		Title:           r.Title,
		Location:        r.Location,
		Attendees:       r.Attendees,
		Resources:       r.Resources,
		ReminderMinutes: r.ReminderMinutes,
		ClearReminder:   r.ClearReminder,
	}
	if r.Start != nil {
		start := parseField(vErr, "start", *r.Start)
		patch.Start = &start
	}
	if r.End != nil {
		end := parseField(vErr, "end", *r.End)
		patch.End = &end
	}
	if r.Type != nil {
		value := application.EventType(strings.TrimSpace(*r.Type))
		patch.Type = &value
	}
	if r.Module != nil {
		value := application.Module(strings.TrimSpace(*r.Module))
		patch.Module = &value
	}
	if r.Priority != nil {
		value := application.Priority(strings.TrimSpace(*r.Priority))
		patch.Priority = &value
	}
	if r.Status != nil {
		value := application.Status(strings.TrimSpace(*r.Status))
		patch.Status = &value
	}
	return patch, vErr
}

// parseField parses an RFC 3339 timestamp, recording a field error when the
// value is present but malformed. Empty values stay zero for the service to
// report as missing.
func parseField(vErr *application.ValidationError, field, value string) time.Time {
	ts, err := parseQueryTime(value)
	if err != nil {
		if vErr.FieldErrors == nil {
			vErr.FieldErrors = make(map[string]string)
		}
		vErr.FieldErrors[field] = "must be an RFC 3339 timestamp"
	}
	return ts
}

func parseQueryTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

type eventResponse struct {
	Event    eventDTO           `json:"event"`
	Conflict *conflictReportDTO `json:"conflict,omitempty"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type eventDTO struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	Type            string   `json:"type"`
	Module          string   `json:"module"`
	Location        string   `json:"location,omitempty"`
	Attendees       []string `json:"attendees"`
	Resources       []string `json:"resources"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	ReminderMinutes *int     `json:"reminder_minutes,omitempty"`
	Version         int      `json:"version"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	attendees := event.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	resources := event.Resources
	if resources == nil {
		resources = []string{}
	}
	return eventDTO{
		ID:              event.ID,
		Title:           event.Title,
		Start:           formatTime(event.Start),
		End:             formatTime(event.End),
		Type:            string(event.Type),
		Module:          string(event.Module),
		Location:        event.Location,
		Attendees:       attendees,
		Resources:       resources,
		Priority:        string(event.Priority),
		Status:          string(event.Status),
		ReminderMinutes: event.ReminderMinutes,
		Version:         event.Version,
		CreatedAt:       formatTime(event.CreatedAt),
		UpdatedAt:       formatTime(event.UpdatedAt),
	}
}

func toEventDTOs(events []application.Event) []eventDTO {
	dtos := make([]eventDTO, 0, len(events))
	for _, event := range events {
		dtos = append(dtos, toEventDTO(event))
	}
	return dtos
}

type conflictReportDTO struct {
	HasConflict  bool          `json:"has_conflict"`
	ConflictType string        `json:"conflict_type,omitempty"`
	LastSeenType string        `json:"last_seen_type,omitempty"`
	Suggestion   string        `json:"suggestion,omitempty"`
	Conflicts    []conflictDTO `json:"conflicts"`
}

type conflictDTO struct {
	EventID         string   `json:"event_id"`
	Title           string   `json:"title"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	Type            string   `json:"type"`
	SharedAttendees []string `json:"shared_attendees,omitempty"`
	SharedResources []string `json:"shared_resources,omitempty"`
	Location        string   `json:"location,omitempty"`
}

func toConflictReportDTO(report application.ConflictReport) conflictReportDTO {
	dto := conflictReportDTO{
		HasConflict:  report.HasConflict,
		ConflictType: report.ConflictType,
		LastSeenType: report.LastSeenType,
		Suggestion:   report.Suggestion,
		Conflicts:    make([]conflictDTO, 0, len(report.Conflicts)),
	}
	for _, conflict := range report.Conflicts {
		dto.Conflicts = append(dto.Conflicts, conflictDTO{
			EventID:         conflict.Event.ID,
			Title:           conflict.Event.Title,
			Start:           formatTime(conflict.Event.Start),
			End:             formatTime(conflict.Event.End),
			Type:            conflict.Type,
			SharedAttendees: conflict.SharedAttendees,
			SharedResources: conflict.SharedResources,
			Location:        conflict.Location,
		})
	}
	return dto
}

type utilizationDTO struct {
	ResourceID      string    `json:"resource_id"`
	ResourceType    string    `json:"resource_type"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	UsedMinutes     float64   `json:"used_minutes"`
	TotalMinutes    float64   `json:"total_minutes"`
	UtilizationRate float64   `json:"utilization_rate"`
	Availability    []slotDTO `json:"availability"`
	BookedEventIDs  []string  `json:"booked_event_ids"`
}

type slotDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	IsAvailable bool   `json:"is_available"`
}

func toUtilizationDTO(report application.UtilizationReport) utilizationDTO {
	dto := utilizationDTO{
		ResourceID:      report.ResourceID,
		ResourceType:    report.ResourceType,
		From:            formatTime(report.From),
		To:              formatTime(report.To),
		UsedMinutes:     report.UsedMinutes,
		TotalMinutes:    report.TotalMinutes,
		UtilizationRate: report.UtilizationRate,
		Availability:    make([]slotDTO, 0, len(report.Availability)),
		BookedEventIDs:  report.BookedEventIDs,
	}
	if dto.BookedEventIDs == nil {
		dto.BookedEventIDs = []string{}
	}
	for _, slot := range report.Availability {
		dto.Availability = append(dto.Availability, slotDTO{
			Start:       formatTime(slot.Start),
			End:         formatTime(slot.End),
			IsAvailable: slot.IsAvailable,
		})
	}
	return dto
}
