package fieldevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
)

const consumerName = "field-events-analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// Consumer writes field events to BigQuery while honoring Redis idempotency.
type Consumer struct {
	client      tableInserter
	table       string
	manager     idempotencyChecker
	logg        *logger.Logger
	eventFilter map[enums.OutboxEventType]struct{}
}

// NewConsumer builds a field events analytics consumer.
func NewConsumer(client tableInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:  client,
		table:   strings.TrimSpace(table),
		manager: manager,
		logg:    logg,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventMarketSessionStarted: {},
			enums.EventMarketSessionEnded:   {},
			enums.EventVisitCheckedIn:       {},
			enums.EventVisitCheckedOut:      {},
			enums.EventVisitAbandoned:       {},
			enums.EventLeadDiscovered:       {},
			enums.EventLeadAssigned:         {},
		},
	}, nil
}

// Process ingests the outbox envelope into BigQuery if the event is supported.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by field events consumer")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	ran, err := c.manager.Once(ctx, consumerName, eventID, func(ctx context.Context) error {
		row, err := buildRow(eventType, envelope)
		if err != nil {
			c.logg.Error(logCtx, "failed to build field event row", err)
			return err
		}
		if err := c.client.InsertRows(ctx, c.table, []any{row}); err != nil {
			c.logg.Error(logCtx, "failed to insert field event row", err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	c.logg.Info(logCtx, "field event ingested")
	return nil
}

type fieldEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	CompanyID        *string            `bigquery:"company_id"`
	RepresentativeID *string            `bigquery:"representative_id"`
	SessionID        *string            `bigquery:"session_id"`
	VisitID          *string            `bigquery:"visit_id"`
	Outcome          *string            `bigquery:"outcome"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}

func buildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*fieldEventRow, error) {
	payload := map[string]any{}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	payloadJSON := cbigquery.NullJSON{}
	if len(envelope.Data) > 0 {
		payloadJSON.Valid = true
		payloadJSON.JSONVal = string(envelope.Data)
	}

	// lead events carry the finder rather than a representative_id
	representative := stringValue(payload, "representative_id")
	if representative == nil {
		representative = stringValue(payload, "found_by")
	}
	if representative == nil {
		representative = stringValue(payload, "assigned_to")
	}
	session := stringValue(payload, "session_id")
	if session == nil {
		session = stringValue(payload, "found_in_session_id")
	}

	return &fieldEventRow{
		EventID:          envelope.EventID,
		EventType:        string(eventType),
		OccurredAt:       envelope.OccurredAt,
		CompanyID:        stringValue(payload, "company_id"),
		RepresentativeID: representative,
		SessionID:        session,
		VisitID:          stringValue(payload, "visit_id"),
		Outcome:          stringValue(payload, "outcome"),
		Payload:          payloadJSON,
	}, nil
}

func stringValue(payload map[string]any, key string) *string {
	if payload == nil {
		return nil
	}
	if raw, ok := payload[key]; ok {
		if str, ok := raw.(string); ok {
			trimmed := strings.TrimSpace(str)
			if trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}
