package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/scheduling-core/internal/application"
	"github.com/example/scheduling-core/internal/persistence/memory"
	"github.com/example/scheduling-core/internal/reminder"
)

// ServiceFactory assists tests with constructing the event service using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("evt")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// EventServiceDeps captures dependencies for constructing an event service.
// Events defaults to a fresh in-memory store.
type EventServiceDeps struct {
	Events    application.EventRepository
	Reminders application.ReminderScheduler
	Publisher application.ChangePublisher
	Logger    *slog.Logger
	SlotSize  time.Duration
	Options   []application.EventServiceOption
}

// NewEventService builds an event service wired to the factory clock and
// identifier generator.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	events := deps.Events
	if events == nil {
		events = application.NewRepositoryAdapter(memory.New())
	}

	opts := []application.EventServiceOption{
		application.WithClock(f.Clock.NowFunc()),
		application.WithIDGenerator(f.IDGenerator.NextFunc()),
		application.WithLogger(deps.Logger),
		application.WithSlotSize(deps.SlotSize),
	}
	if deps.Reminders != nil {
		opts = append(opts, application.WithReminders(deps.Reminders))
	}
	if deps.Publisher != nil {
		opts = append(opts, application.WithPublisher(deps.Publisher))
	}
	opts = append(opts, deps.Options...)
	return application.NewEventService(events, opts...)
}

// NewReminderScheduler builds a reminder scheduler driven by the factory clock,
// so reminders fire when the test advances it.
func (f *ServiceFactory) NewReminderScheduler(dispatch reminder.Dispatcher, opts ...reminder.Option) *reminder.Scheduler {
	return reminder.New(f.Clock, dispatch, opts...)
}
