// Package registry tells the relay which topic each outbox event goes to and
// checks that a row still decodes before it is published.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// MaxVersion is the newest envelope version this build can read.
	MaxVersion int

	newPayload func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish and belongs in the
// dead-letter table.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		MaxVersion:    1,
		newPayload:    func() any { return new(T) },
	}
}

var fieldEvents = []EventDescriptor{
	describe[payloads.MarketSessionStartedEvent](enums.EventMarketSessionStarted, enums.AggregateMarketSession),
	describe[payloads.MarketSessionEndedEvent](enums.EventMarketSessionEnded, enums.AggregateMarketSession),
	describe[payloads.VisitCheckedInEvent](enums.EventVisitCheckedIn, enums.AggregateVisit),
	describe[payloads.VisitCheckedOutEvent](enums.EventVisitCheckedOut, enums.AggregateVisit),
	describe[payloads.VisitAbandonedEvent](enums.EventVisitAbandoned, enums.AggregateVisit),
	describe[payloads.LeadDiscoveredEvent](enums.EventLeadDiscovered, enums.AggregatePotentialDealer),
	describe[payloads.LeadAssignedEvent](enums.EventLeadAssigned, enums.AggregatePotentialDealer),
}

// EventRegistry is read-only after construction.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every field event to the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.FieldEventsTopic == "" {
		return nil, errors.New("field events topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(fieldEvents))}
	for _, desc := range fieldEvents {
		desc.Topic = cfg.FieldEventsTopic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row is what it is.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version > desc.MaxVersion {
		return nil, fmt.Errorf("%s envelope v%d is newer than supported v%d", event.EventType, envelope.Version, desc.MaxVersion)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s", event.EventType)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
