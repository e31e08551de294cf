// Package http exposes the event store over JSON.
//
// The router exposes the following endpoints:
//   - GET /events, POST /events: list events (query: module, type, status,
//     resource, attendee, from, to) or create one. Creation answers 201 with
//     {"event", "conflict"}; the conflict report is present only when the
//     write was forced through with "override_conflicts".
//   - GET /events/{id}, PATCH /events/{id}, DELETE /events/{id}: read,
//     partially update, or remove a single event. PATCH accepts only the
//     fields being changed plus "clear_reminder".
//   - POST /conflicts/preview: run conflict detection for a candidate event
//     without storing it.
//   - GET /resources/{id}/utilization?from=&to=&slot=: booked minutes,
//     utilization rate, and per slot availability for one resource.
//   - GET /calendar.ics: the non cancelled events as an iCalendar feed; same
//     filters as GET /events. An empty result answers 204.
//   - GET /healthz: liveness probe, never authenticated.
//
// Timestamps are RFC 3339. Scheduling conflicts answer 409 with
// error_code SCHEDULING_CONFLICT and the full report, lost update races
// answer 409 CONCURRENT_MODIFICATION, and forbidden status changes answer 409
// INVALID_TRANSITION. Validation failures answer 422 with per field messages.
//
// When module keys are configured every other request must carry the
// X-Module and X-API-Key headers.
package http
