package converge

import (
	"context"

	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	"github.com/alexisbeaulieu97/profilestate/internal/ports"
)

type domainEvent struct {
	eventType string
	payload   interface{}
}

func (e domainEvent) EventType() string {
	return e.eventType
}

func (e domainEvent) Payload() interface{} {
	return e.payload
}

func publishEvent(ctx context.Context, publisher ports.EventPublisher, log *logger.Logger, eventType string, payload map[string]interface{}) {
	if publisher == nil {
		return
	}
	event := domainEvent{
		eventType: eventType,
		payload:   payload,
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.WithFields(map[string]any{"event_type": eventType}).Error(err, "failed to publish domain event")
	}
}

func outcomeEventType(o Outcome) string {
	switch o.Status() {
	case StatusErrored:
		return ports.EventProfileErrored
	case StatusFailed:
		return ports.EventProfileFailed
	case StatusWouldChange:
		return ports.EventProfileWouldChange
	case StatusChanged:
		return ports.EventProfileChanged
	default:
		return ports.EventProfileUnchanged
	}
}
