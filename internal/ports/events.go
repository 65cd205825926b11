package ports

import "context"

const (
	// EventConvergeStarted is emitted before any profile is reconciled.
	EventConvergeStarted = "converge.started"
	// EventConvergeCompleted is emitted after every profile produced an outcome.
	EventConvergeCompleted = "converge.completed"
	// EventConvergeFailed is emitted when a run aborts on a capability error.
	EventConvergeFailed = "converge.failed"
	// EventProfileChanged is emitted when a profile was installed or removed.
	EventProfileChanged = "profile.changed"
	// EventProfileUnchanged is emitted when a profile was already converged.
	EventProfileUnchanged = "profile.unchanged"
	// EventProfileWouldChange is emitted by dry runs that found drift.
	EventProfileWouldChange = "profile.would_change"
	// EventProfileFailed is emitted when install or remove reported failure.
	EventProfileFailed = "profile.failed"
	// EventProfileErrored is emitted when a capability returned an error.
	EventProfileErrored = "profile.errored"
)

// DomainEvent represents a significant occurrence within a convergence run.
// Events carry structured payloads that downstream subscribers can use for
// logging, metrics, or integrations.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// EventPublisher distributes events to interested subscribers. Dispatch is
// synchronous: Publish blocks until all handlers run. Implementations must be
// thread-safe because profiles converge concurrently.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type. Failures should be
// surfaced via returned errors so publishers can log diagnostics and continue
// delivering to remaining subscribers.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler. Callers must invoke
// Unsubscribe to stop receiving events.
type Subscription interface {
	Unsubscribe()
}
