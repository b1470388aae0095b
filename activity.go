package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates session lifecycle events.
type ActivityEventType string

const (
	ActivityEventLoginSuccess       ActivityEventType = "session.login.success"
	ActivityEventLoginFailure       ActivityEventType = "session.login.failure"
	ActivityEventLogout             ActivityEventType = "session.logout"
	ActivityEventRenewalSuccess     ActivityEventType = "session.renewal.success"
	ActivityEventRenewalFailure     ActivityEventType = "session.renewal.failure"
	ActivityEventRenewalDiscarded   ActivityEventType = "session.renewal.discarded"
	ActivityEventBootstrapRestored  ActivityEventType = "session.bootstrap.restored"
	ActivityEventBootstrapAnonymous ActivityEventType = "session.bootstrap.anonymous"
	ActivityEventSessionRevoked     ActivityEventType = "session.revoked"
)

// ActivityEvent captures audit-friendly information about a session change.
type ActivityEvent struct {
	ID         uuid.UUID
	EventType  ActivityEventType
	UserID     string
	Role       Role
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink delivers each event to every sink in order. All sinks
// see the event even when an earlier one fails; the errors are joined.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityEmitter is embedded by the components that publish events. Sink
// failures are logged and never interrupt the session flow.
type activityEmitter struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func newActivityEmitter() activityEmitter {
	return activityEmitter{
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
	}
}

func (e activityEmitter) emit(ctx context.Context, eventType ActivityEventType, identity *Identity, metadata map[string]any) {
	event := ActivityEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: e.now().UTC(),
	}
	if identity != nil {
		event.UserID = identity.ID
		event.Role = identity.Role
	}

	if err := e.sink.Record(ctx, event); err != nil {
		e.logger.Error("activity sink error", "event", eventType, "error", err)
	}
}
