package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/metrics"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/registry"
)

type delivery struct {
	outcome string
	reason  enums.OutboxDLQErrorReason
	err     error
	fields  map[string]any
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{fields: map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}}

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return d.dead(enums.OutboxDLQReasonUnresolvable, err)
	}
	topic := resolved.Descriptor.Topic
	d.fields["topic"] = topic
	d.fields["event_id"] = resolved.Envelope.EventID
	d.fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)

	err = r.publish(ctx, topic, message(event, resolved))
	if err == nil {
		d.outcome = metrics.RelayPublished
		return d
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return d.dead(enums.OutboxDLQReasonNonRetryable, err)
	}
	next := event.AttemptCount + 1
	d.fields["attempt_count"] = next
	if next >= r.maxAttempts {
		return d.dead(enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}
	d.outcome = metrics.RelayRetried
	d.err = err
	return d
}

func (d delivery) dead(reason enums.OutboxDLQErrorReason, err error) delivery {
	d.outcome = metrics.RelayDeadLettered
	d.reason = reason
	d.err = err
	d.fields["error_reason"] = reason
	return d
}

func (r *Relay) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := r.topics.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return pub.Publish(publishCtx, msg)
}

// message keys every event by its aggregate so a visit's check-in is always
// delivered ahead of its checkout.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.CompanyID != uuid.Nil {
		attrs["company_id"] = actor.CompanyID.String()
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: event.AggregateID.String(),
	}
}

func deadLetter(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, at time.Time) models.OutboxDLQ {
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      at.UTC(),
	}
	if err != nil {
		msg := err.Error()
		entry.ErrorMessage = &msg
	}
	return entry
}
