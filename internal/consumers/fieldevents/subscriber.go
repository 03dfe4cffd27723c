package fieldevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/idempotency"
)

type processor interface {
	Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Subscriber pulls field events from Pub/Sub and hands them to the consumer.
type Subscriber struct {
	subscription receiver
	consumer     processor
	logg         *logger.Logger
}

// NewSubscriber wires a Pub/Sub subscription to a field events consumer.
func NewSubscriber(subscription receiver, consumer processor, logg *logger.Logger) (*Subscriber, error) {
	if subscription == nil {
		return nil, errors.New("field events subscription is required")
	}
	if consumer == nil {
		return nil, errors.New("field events consumer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Subscriber{subscription: subscription, consumer: consumer, logg: logg}, nil
}

// Run receives messages until the context is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.handle(innerCtx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// handle reports whether the message should be redelivered.
func (s *Subscriber) handle(ctx context.Context, msg *gcppubsub.Message) bool {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"event_type":   msg.Attributes["event_type"],
		"aggregate_id": msg.Attributes["aggregate_id"],
	})

	eventType, envelope, err := decodeMessage(msg)
	if err != nil {
		// malformed messages never succeed on retry
		s.logg.Warn(logCtx, fmt.Sprintf("dropping invalid field event: %v", err))
		return false
	}

	if err := s.consumer.Process(logCtx, eventType, envelope); err != nil {
		if errors.Is(err, idempotency.ErrInFlight) {
			s.logg.Info(logCtx, "field event already in flight, redelivering later")
			return true
		}
		s.logg.Error(logCtx, "field event processing failed", err)
		return true
	}
	return false
}

func decodeMessage(msg *gcppubsub.Message) (enums.OutboxEventType, outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return "", envelope, fmt.Errorf("decode payload envelope: %w", err)
	}
	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return "", envelope, fmt.Errorf("event_type: %w", err)
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		envelope.EventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	return eventType, envelope, nil
}
