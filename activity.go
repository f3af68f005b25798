package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered       ActivityEventType = "auth.account.registered"
	ActivityEventAccountUpdated   ActivityEventType = "auth.account.updated"
	ActivityEventAccountDisabled  ActivityEventType = "auth.account.deactivated"
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventAccountLocked    ActivityEventType = "auth.lockout.engaged"
	ActivityEventTokenIssued      ActivityEventType = "auth.token.issued"
	ActivityEventTokenRejected    ActivityEventType = "auth.token.rejected"
	ActivityEventTokenRevoked     ActivityEventType = "auth.token.revoked"
	ActivityEventTokensCleaned    ActivityEventType = "auth.token.cleanup"
)

// ActivityEvent captures audit friendly information about an action. Reason
// holds the internal cause behind a uniform public rejection.
type ActivityEvent struct {
	EventType  ActivityEventType
	AccountID  string
	Reason     string
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

// MultiActivitySink fans an event out to every sink, the first error wins.
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
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

// emit records event and logs a sink failure. Telemetry never fails a request.
func emit(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = utcNow()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
