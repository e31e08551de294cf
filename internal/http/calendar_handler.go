package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/scheduling-core/internal/application"
	"github.com/example/scheduling-core/internal/calendar"
)

const calendarProductID = "-//scheduling-core//event store//EN"

type eventLister interface {
	ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error)
}

// CalendarHandler exports stored events as an iCalendar feed. Cancelled
// events are left out.
type CalendarHandler struct {
	events    eventLister
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(events eventLister, now func() time.Time, logger *slog.Logger) *CalendarHandler {
	if now == nil {
		now = time.Now
	}
	return &CalendarHandler{events: events, now: now, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter, err := buildEventFilter(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	events, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	entries := make([]calendar.Entry, 0, len(events))
	for _, event := range events {
		if event.Status == application.StatusCancelled {
			continue
		}
		entries = append(entries, calendar.Entry{
			UID:      event.ID,
			Summary:  event.Title,
			Location: event.Location,
			Start:    event.Start,
			End:      event.End,
			Status:   string(event.Status),
			Category: string(event.Type),
		})
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, calendarProductID, entries, h.now()); err != nil {
		if errors.Is(err, calendar.ErrEmptyCalendar) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handlerLogger(r.Context(), h.logger, "CalendarHandler", "Export").ErrorContext(r.Context(), "failed to encode calendar", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
