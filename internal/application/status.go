package application

var statusTransitions = map[Status][]Status{
	StatusScheduled:   {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusRescheduled: {StatusScheduled},
	StatusConfirmed:   {StatusCompleted, StatusCancelled},
}

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether no further changes are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// OccupiesTime reports whether events in this status block their window.
func (s Status) OccupiesTime() bool {
	return s.Valid() && !s.Terminal()
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// Setting a status to its current value is a no-op and always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// creatable lists the statuses a new event may start in.
func (s Status) creatable() bool {
	return s == StatusScheduled || s == StatusConfirmed
}
