package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType identifies the entity an outbox event belongs to. Its
// id is the Pub/Sub ordering key.
type OutboxAggregateType string

const (
	AggregateMarketSession   OutboxAggregateType = "market_session"
	AggregateVisit           OutboxAggregateType = "visit"
	AggregatePotentialDealer OutboxAggregateType = "potential_dealer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMarketSession,
	AggregateVisit,
	AggregatePotentialDealer,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a field domain event.
type OutboxEventType string

const (
	EventMarketSessionStarted OutboxEventType = "market_session_started"
	EventMarketSessionEnded   OutboxEventType = "market_session_ended"
	EventVisitCheckedIn       OutboxEventType = "visit_checked_in"
	EventVisitCheckedOut      OutboxEventType = "visit_checked_out"
	EventVisitAbandoned       OutboxEventType = "visit_abandoned"
	EventLeadDiscovered       OutboxEventType = "lead_discovered"
	EventLeadAssigned         OutboxEventType = "lead_assigned"
)

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventMarketSessionStarted: AggregateMarketSession,
	EventMarketSessionEnded:   AggregateMarketSession,
	EventVisitCheckedIn:       AggregateVisit,
	EventVisitCheckedOut:      AggregateVisit,
	EventVisitAbandoned:       AggregateVisit,
	EventLeadDiscovered:       AggregatePotentialDealer,
	EventLeadAssigned:         AggregatePotentialDealer,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is the aggregate every event of this type is recorded against,
// or "" for an unknown type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
